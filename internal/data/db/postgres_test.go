package db

import "testing"

func TestPostgresDSN(t *testing.T) {
	cfg := PostgresConfig{Host: "db", Port: "5432", User: "svc", Password: "p@ss/word", Name: "course_ingest"}
	want := "postgres://svc:p%40ss%2Fword@db:5432/course_ingest?sslmode=disable"
	if got := cfg.DSN(); got != want {
		t.Fatalf("dsn=%q want %q", got, want)
	}
	cfg.SSLMode = "require"
	if got := cfg.DSN(); got != "postgres://svc:p%40ss%2Fword@db:5432/course_ingest?sslmode=require" {
		t.Fatalf("dsn=%q", got)
	}
}
