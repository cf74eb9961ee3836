package repository

import "fmt"

// Dialect carries the SQL differences between the supported engines.
type Dialect struct {
	Name   string
	Prefix string // qualifies table names, e.g. "jewel."
	Schema []string
}

func (d Dialect) table(name string) string { return d.Prefix + name }

// ClickHouseDialect stores tables in the given database with MergeTree engines.
func ClickHouseDialect(database string) Dialect {
	return Dialect{
		Name:   "clickhouse",
		Prefix: database + ".",
		Schema: []string{
			fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s", database),
			fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.gold_prices (
				metal String,
				purity String,
				date Date,
				price_per_gram Float64
			) ENGINE = MergeTree ORDER BY (metal, purity, date)`, database),
			fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.diamond_prices (
				carat Float64,
				cut LowCardinality(String),
				color LowCardinality(String),
				clarity LowCardinality(String),
				price Float64,
				recorded_at DateTime DEFAULT now()
			) ENGINE = MergeTree ORDER BY recorded_at`, database),
			fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.model_training_logs (
				model_name LowCardinality(String),
				version String,
				r2 Float64,
				rmse Float64,
				mae Float64,
				mape Float64,
				data_points Int64,
				trained_at DateTime64(3, 'UTC')
			) ENGINE = MergeTree ORDER BY (model_name, trained_at)`, database),
		},
	}
}

// DuckDBDialect uses unqualified tables in the opened DuckDB file.
func DuckDBDialect() Dialect {
	return Dialect{
		Name: "duckdb",
		Schema: []string{
			`CREATE TABLE IF NOT EXISTS gold_prices (
				metal VARCHAR NOT NULL,
				purity VARCHAR NOT NULL,
				date DATE NOT NULL,
				price_per_gram DOUBLE NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_gold_prices_metal ON gold_prices(metal, purity, date)`,
			`CREATE TABLE IF NOT EXISTS diamond_prices (
				carat DOUBLE NOT NULL,
				cut VARCHAR NOT NULL,
				color VARCHAR NOT NULL,
				clarity VARCHAR NOT NULL,
				price DOUBLE NOT NULL,
				recorded_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
			)`,
			`CREATE TABLE IF NOT EXISTS model_training_logs (
				model_name VARCHAR NOT NULL,
				version VARCHAR NOT NULL,
				r2 DOUBLE,
				rmse DOUBLE,
				mae DOUBLE,
				mape DOUBLE,
				data_points BIGINT,
				trained_at TIMESTAMP NOT NULL
			)`,
		},
	}
}
