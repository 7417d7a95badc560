package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/Rasalp1/canvas-lm-sub000/internal/app"
)

type idList []string

func (l *idList) String() string { return strings.Join(*l, ",") }
func (l *idList) Set(v string) error {
	v = strings.TrimSpace(v)
	if v != "" {
		*l = append(*l, v)
	}
	return nil
}

// scan_sessions lists persisted scan snapshots and, unless -dry-run is set, runs
// recovery on them so stale records are cleared and live ones are resumed.
func main() {
	var courses idList
	var dryRun bool
	flag.Var(&courses, "course", "course id to recover (repeatable, default all)")
	flag.BoolVar(&dryRun, "dry-run", false, "print snapshots without recovering")
	flag.Parse()

	_ = godotenv.Load()
	ctx := context.Background()

	application, err := app.New(ctx)
	if err != nil {
		fmt.Printf("init app: %v\n", err)
		os.Exit(1)
	}
	defer application.Close(ctx)

	snaps, err := application.Snapshots().List(ctx)
	if err != nil {
		fmt.Printf("list snapshots: %v\n", err)
		os.Exit(1)
	}
	want := map[string]bool{}
	for _, c := range courses {
		want[c] = true
	}

	for _, s := range snaps {
		if len(want) > 0 && !want[s.CourseID] {
			continue
		}
		age := s.Age(time.Now()).Round(time.Second)
		if dryRun {
			fmt.Printf("%s\t%s\tage=%s\n", s.CourseID, s.Status, age)
			continue
		}
		ctrl, err := application.Services.Sessions.Controller(ctx, s.CourseID)
		if err != nil {
			fmt.Printf("%s\terror: %v\n", s.CourseID, err)
			continue
		}
		fmt.Printf("%s\t%s\tage=%s\t-> %s\n", s.CourseID, s.Status, age, ctrl.Phase())
	}
}
