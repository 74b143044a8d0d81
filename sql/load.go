package sql

import (
	"database/sql"
	_ "embed"
	"fmt"
	"log/slog"
)

//go:embed init.sql
var initSQL string

//go:embed investigations.sql
var investigationsSQL string

//go:embed entities.sql
var entitiesSQL string

// Function lists for verification
var InvestigationsFunctions = []string{
	"init_investigations",
	"insert_investigation",
	"update_investigation",
	"select_investigation",
	"select_all_investigations",
	"delete_investigation",
}

var EntitiesFunctions = []string{
	"init_entities",
	"upsert_entity",
	"select_entities_by_key",
	"select_entities_by_search",
	"select_entities_by_similarity",
	"select_entities_of_investigation",
	"delete_entities_of_investigation",
}

// Init initializes the vector and trigram extensions
func Init(db *sql.DB) error {
	_, err := db.Exec(initSQL)
	if err != nil {
		return fmt.Errorf("error executing schema SQL: %w", err)
	}

	slog.Debug("Database extensions initialized successfully")
	return nil
}

// LoadInvestigationsSql loads investigation-related SQL functions
func LoadInvestigationsSql(db *sql.DB, force bool) error {
	return loadSql(db, "investigations", investigationsSQL, InvestigationsFunctions, force)
}

// LoadEntitiesSql loads entity-related SQL functions
func LoadEntitiesSql(db *sql.DB, force bool) error {
	return loadSql(db, "entities", entitiesSQL, EntitiesFunctions, force)
}

// LoadAllSql loads all SQL functions
func LoadAllSql(db *sql.DB, force bool) error {
	if err := LoadInvestigationsSql(db, force); err != nil {
		return err
	}

	return LoadEntitiesSql(db, force)
}

// loadSql executes script unless all functions already exist. With force
// the script is always executed.
func loadSql(db *sql.DB, name string, script string, functions []string, force bool) error {
	if !force {
		exist, err := checkFunctions(db, functions)
		if err != nil {
			return fmt.Errorf("error checking existing %s functions: %w", name, err)
		}
		if exist {
			return nil
		}
	}

	_, err := db.Exec(script)
	if err != nil {
		return fmt.Errorf("error executing %s SQL: %w", name, err)
	}

	exist, err := checkFunctions(db, functions)
	if err != nil {
		return fmt.Errorf("error checking existing functions: %w", err)
	}
	if !exist {
		return fmt.Errorf("not all required SQL functions were created")
	}

	slog.Debug("SQL functions loaded successfully", slog.String("group", name))
	return nil
}

// checkFunctions verifies that all required functions exist in the database
func checkFunctions(db *sql.DB, sqlFunctions []string) (bool, error) {
	var allExist bool
	for _, f := range sqlFunctions {
		err := db.QueryRow(
			`SELECT EXISTS(SELECT 1 FROM pg_proc WHERE proname = $1);`,
			f,
		).Scan(&allExist)
		if err != nil {
			return false, fmt.Errorf("error checking existence of function %s: %w", f, err)
		}
		if !allExist {
			slog.Debug("SQL function does not exist", slog.String("function", f))
			break
		}
	}
	return allExist, nil
}
