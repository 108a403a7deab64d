package database

import (
	"database/sql"
	"encoding/json"
	"fmt"
)

// LoadConfig returns the stored config JSON for a service, or nil when
// no config has been saved under that name.
func LoadConfig(name string) (map[string]interface{}, error) {
	db := GetDB()
	if db == nil {
		return nil, fmt.Errorf("database not initialized")
	}

	var raw string
	err := db.QueryRow("SELECT config FROM service_configs WHERE name = ?", name).Scan(&raw)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load config %s: %w", name, err)
	}

	var config map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &config); err != nil {
		return nil, fmt.Errorf("failed to decode config %s: %w", name, err)
	}
	return config, nil
}

// SaveConfig upserts the config JSON for a service.
func SaveConfig(name string, config map[string]interface{}) error {
	db := GetDB()
	if db == nil {
		return fmt.Errorf("database not initialized")
	}

	raw, err := json.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to encode config %s: %w", name, err)
	}

	query := `
		INSERT INTO service_configs (name, config, updated_at)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(name) DO UPDATE SET config = excluded.config, updated_at = CURRENT_TIMESTAMP
	`
	if _, err := db.Exec(query, name, string(raw)); err != nil {
		return fmt.Errorf("failed to save config %s: %w", name, err)
	}
	return nil
}

// ListConfigNames returns the names of all stored configs.
func ListConfigNames() ([]string, error) {
	db := GetDB()
	if db == nil {
		return nil, fmt.Errorf("database not initialized")
	}

	rows, err := db.Query("SELECT name FROM service_configs ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("failed to list configs: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan config name: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// StartupSet returns the services marked for autostart.
func StartupSet() ([]string, error) {
	db := GetDB()
	if db == nil {
		return nil, fmt.Errorf("database not initialized")
	}

	rows, err := db.Query("SELECT name FROM startup_services ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("failed to query startup set: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan startup entry: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// StartupSetExists reports whether the startup set has ever been seeded.
func StartupSetExists() (bool, error) {
	db := GetDB()
	if db == nil {
		return false, fmt.Errorf("database not initialized")
	}

	var count int
	if err := db.QueryRow("SELECT COUNT(*) FROM startup_services").Scan(&count); err != nil {
		return false, fmt.Errorf("failed to count startup set: %w", err)
	}
	return count > 0, nil
}

// StartupSetAdd inserts service names into the startup set.
func StartupSetAdd(names ...string) error {
	db := GetDB()
	if db == nil {
		return fmt.Errorf("database not initialized")
	}

	for _, name := range names {
		if _, err := db.Exec("INSERT OR IGNORE INTO startup_services (name) VALUES (?)", name); err != nil {
			return fmt.Errorf("failed to add %s to startup set: %w", name, err)
		}
	}
	return nil
}

// StartupSetRemove deletes a service name from the startup set.
func StartupSetRemove(name string) error {
	db := GetDB()
	if db == nil {
		return fmt.Errorf("database not initialized")
	}

	if _, err := db.Exec("DELETE FROM startup_services WHERE name = ?", name); err != nil {
		return fmt.Errorf("failed to remove %s from startup set: %w", name, err)
	}
	return nil
}
