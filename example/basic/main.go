package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/siherrmann/pano"
	"github.com/siherrmann/pano/core/layout"
	"github.com/siherrmann/pano/model"
)

func main() {
	ctx := context.Background()

	p, err := pano.New(nil)
	if err != nil {
		log.Fatalf("Failed to create investigation: %v", err)
	}
	defer p.Close()

	// Seed the canvas
	email := model.MustNewEntity(model.EntityTypeEmail, map[string]any{"address": "jane.doe@example.com"})
	p.Graph.AddNode(email, model.Position{})

	start := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	meeting := model.MustNewEntity(model.EntityTypeEvent, map[string]any{
		"name":            "Meeting at the harbour",
		"start_date":      start,
		"end_date":        start.Add(2 * time.Hour),
		"add_to_timeline": true,
	})
	p.Graph.AddNode(meeting, model.Position{X: -300})

	// Offline transforms
	for _, name := range []string{"Email to Person", "Email to Website"} {
		result, err := p.RunTransform(ctx, name, email.ID)
		if err != nil {
			log.Fatalf("Failed to run %s: %v", name, err)
		}
		for _, node := range result.Nodes {
			fmt.Printf("%s: %s (%s)\n", name, node.Entity.Label, node.Entity.Type)
		}
	}

	if err := p.ApplyLayout(layout.Hierarchical, model.Position{}); err != nil {
		log.Fatalf("Failed to apply layout: %v", err)
	}

	dir, err := os.MkdirTemp("", "pano-example")
	if err != nil {
		log.Fatalf("Failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(dir)

	path, err := p.Save(ctx, filepath.Join(dir, "example"))
	if err != nil {
		log.Fatalf("Failed to save investigation: %v", err)
	}
	fmt.Printf("\nSaved investigation to %s\n", path)

	loaded, err := pano.New(nil)
	if err != nil {
		log.Fatalf("Failed to create investigation: %v", err)
	}
	if err := loaded.Load(ctx, path); err != nil {
		log.Fatalf("Failed to load investigation: %v", err)
	}

	nodes, edges := loaded.Graph.Len()
	fmt.Printf("Loaded %d nodes and %d edges\n", nodes, edges)
	for _, node := range loaded.Graph.Nodes() {
		fmt.Printf("  %-10s %-30s (%.0f, %.0f)\n", node.Entity.Type, node.Entity.Label, node.Position.X, node.Position.Y)
	}
	for _, event := range loaded.Timeline.Events() {
		fmt.Printf("Timeline: %s %s - %s\n", event.Title, event.StartTime.Format(time.RFC3339), event.EndTime.Format(time.RFC3339))
	}
}
