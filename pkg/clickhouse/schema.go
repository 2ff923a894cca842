package clickhouse

import "fmt"

// UserLimitsSchema returns DDL for the user limit table.
// ReplacingMergeTree keeps the latest row per user by updated_at.
func UserLimitsSchema(database, table string) []string {
	return []string{
		fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s", database),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.%s (
    user_id String,
    limit_per_minute Int64,
    updated_at DateTime64(3, 'UTC')
) ENGINE = ReplacingMergeTree(updated_at)
ORDER BY user_id`, database, table),
	}
}
