package data

import (
	"database/sql"
	"fmt"
)

var stateQueries = map[string]string{
	"prediction":        "SELECT COUNT(*) FROM prediction",
	"prediction_failed": "SELECT COUNT(*) FROM prediction WHERE error IS NOT NULL",
	"tcga_prediction":   "SELECT COUNT(*) FROM tcga_prediction",
}

// GetDataState returns record counts per table.
func GetDataState(db *sql.DB) (map[string]int64, error) {
	if db == nil {
		return nil, errDBNotInitialized
	}

	state := make(map[string]int64)
	for k, v := range stateQueries {
		var count int64
		if err := db.QueryRow(v).Scan(&count); err != nil {
			return nil, fmt.Errorf("error getting %s count: %w", k, err)
		}
		state[k] = count
	}

	return state, nil
}
