package security

import (
	"testing"
)

func TestValidateServiceName(t *testing.T) {
	valid := []string{"frontier", "my-service", "svc_2", "a", "web.v2"}
	for _, name := range valid {
		if err := ValidateServiceName(name); err != nil {
			t.Errorf("expected %q to be valid: %v", name, err)
		}
	}

	invalid := []string{"", "../etc", "UPPER", "-leading", "a/b", "name with space", ".hidden"}
	for _, name := range invalid {
		if err := ValidateServiceName(name); err == nil {
			t.Errorf("expected %q to be rejected", name)
		}
	}
}

func TestValidateComposeRejectsPrivileged(t *testing.T) {
	v := NewValidator("/images/svc")
	content := []byte(`
services:
  app:
    image: busybox
    privileged: true
`)
	if err := v.ValidateCompose(content); err == nil {
		t.Error("expected privileged service to be rejected")
	}
}

func TestValidateComposeRejectsDangerousCapability(t *testing.T) {
	v := NewValidator("/images/svc")
	content := []byte(`
services:
  app:
    image: busybox
    cap_add:
      - CAP_SYS_ADMIN
`)
	err := v.ValidateCompose(content)
	if err == nil {
		t.Fatal("expected SYS_ADMIN to be rejected")
	}
	verr, ok := err.(ValidationError)
	if !ok || verr.Rule != "dangerous capabilities" {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestValidateComposeBindMounts(t *testing.T) {
	v := NewValidator("/images/svc")

	// Bind mount inside the image directory is fine.
	ok := []byte(`
services:
  app:
    image: busybox
    volumes:
      - /images/svc/data:/data
      - ./config:/etc/app
      - named-volume:/var/lib/app
`)
	if err := v.ValidateCompose(ok); err != nil {
		t.Errorf("expected in-tree mounts to pass: %v", err)
	}

	// Escaping the image directory is not.
	escape := []byte(`
services:
  app:
    image: busybox
    volumes:
      - /etc:/host-etc
`)
	if err := v.ValidateCompose(escape); err == nil {
		t.Error("expected host bind mount to be rejected")
	}

	traversal := []byte(`
services:
  app:
    image: busybox
    volumes:
      - ../other:/data
`)
	if err := v.ValidateCompose(traversal); err == nil {
		t.Error("expected path traversal to be rejected")
	}
}

func TestValidateComposeLongFormBind(t *testing.T) {
	v := NewValidator("/images/svc")
	content := []byte(`
services:
  app:
    image: busybox
    volumes:
      - type: bind
        source: /etc/passwd
        target: /pw
`)
	if err := v.ValidateCompose(content); err == nil {
		t.Error("expected long-form host bind to be rejected")
	}
}
