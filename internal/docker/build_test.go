package docker

import (
	"strings"
	"testing"
)

func TestParseBuildStep(t *testing.T) {
	tests := []struct {
		line    string
		current int
		total   int
		ok      bool
	}{
		{"Step 3/7 : RUN apk add curl\n", 3, 7, true},
		{"Step 10/12 : COPY . .\n", 10, 12, true},
		{" ---> Using cache\n", 0, 0, false},
		{"Successfully built deadbeef\n", 0, 0, false},
	}

	for _, tt := range tests {
		current, total, ok := parseBuildStep(tt.line)
		if ok != tt.ok || current != tt.current || total != tt.total {
			t.Errorf("parseBuildStep(%q) = %d/%d %v, want %d/%d %v",
				tt.line, current, total, ok, tt.current, tt.total, tt.ok)
		}
	}
}

func TestConsumeBuildStream(t *testing.T) {
	stream := strings.Join([]string{
		`{"stream":"Step 1/2 : FROM alpine\n"}`,
		`{"status":"Downloading","id":"layer1"}`,
		`{"stream":"Step 2/2 : CMD [\"true\"]\n"}`,
		`{"aux":{"ID":"sha256:deadbeef"}}`,
	}, "\n")

	imageID, err := consumeBuildStream(strings.NewReader(stream), "frontier")
	if err != nil {
		t.Fatalf("consumeBuildStream failed: %v", err)
	}
	if imageID != "sha256:deadbeef" {
		t.Errorf("unexpected image id %s", imageID)
	}
}

func TestConsumeBuildStreamError(t *testing.T) {
	stream := `{"stream":"Step 1/1 : FROM nosuch\n"}
{"error":"pull access denied"}`

	if _, err := consumeBuildStream(strings.NewReader(stream), "frontier"); err == nil {
		t.Fatal("expected build error")
	} else if !strings.Contains(err.Error(), "pull access denied") {
		t.Errorf("expected daemon error message, got %v", err)
	}
}

func TestConsumeBuildStreamNoImageID(t *testing.T) {
	stream := `{"stream":"Step 1/1 : FROM alpine\n"}`
	if _, err := consumeBuildStream(strings.NewReader(stream), "frontier"); err == nil {
		t.Fatal("expected error when stream ends without image id")
	}
}
