package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/siherrmann/pano"
	"github.com/siherrmann/pano/core/layout"
	"github.com/siherrmann/pano/helper"
	"github.com/siherrmann/pano/model"
)

const report = `On 12 March 2024 John Miller met Sarah Chen at the Hotel Aurora in Lisbon.
Miller, a director of Northwind Logistics, used the address j.miller@northwind.example.
A grey Volvo XC60 registered to Northwind Logistics was seen outside the hotel.`

func main() {
	ctx := context.Background()

	// Start a test PostgreSQL container
	teardown, dbPort, err := helper.MustStartPostgresContainer()
	if err != nil {
		log.Fatalf("Failed to start PostgreSQL container: %v", err)
	}
	defer teardown(context.Background())

	config, err := helper.NewConfiguration("")
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	config.Database = &helper.DatabaseConfiguration{
		Host:     "localhost",
		Port:     dbPort,
		Database: "database",
		Username: "user",
		Password: "password",
		Schema:   "public",
		SSLMode:  "disable",
	}

	// First investigation, archived for later correlation
	past, err := pano.New(config)
	if err != nil {
		log.Fatalf("Failed to create investigation: %v", err)
	}
	defer past.Close()

	pastEmail := model.MustNewEntity(model.EntityTypeEmail, map[string]any{"address": "j.miller@northwind.example"})
	past.Graph.AddNode(pastEmail, model.Position{})
	if _, err := past.RunTransform(ctx, "Email to Person", pastEmail.ID); err != nil {
		log.Fatalf("Failed to run transform: %v", err)
	}
	archived, err := past.Archive(ctx, "Northwind 2023")
	if err != nil {
		log.Fatalf("Failed to archive investigation: %v", err)
	}
	fmt.Printf("Archived %q as %s\n", archived.Name, archived.RID)

	// Second investigation
	current, err := pano.New(config)
	if err != nil {
		log.Fatalf("Failed to create investigation: %v", err)
	}
	defer current.Close()

	if os.Getenv("PANO_LLM_API_KEY") != "" {
		result, err := current.ExtractFromText(ctx, report)
		if err != nil {
			log.Fatalf("Failed to extract entities: %v", err)
		}
		fmt.Printf("Extracted %d entities and %d connections\n", len(result.Nodes), len(result.Edges))
	} else {
		fmt.Println("PANO_LLM_API_KEY not set, adding the email by hand")
		email := model.MustNewEntity(model.EntityTypeEmail, map[string]any{"address": "j.miller@northwind.example"})
		current.Graph.AddNode(email, model.Position{})
	}

	if err := current.ApplyLayout(layout.Force, model.Position{}); err != nil {
		log.Fatalf("Failed to apply layout: %v", err)
	}
	if _, err := current.Archive(ctx, "Lisbon meeting"); err != nil {
		log.Fatalf("Failed to archive investigation: %v", err)
	}

	fmt.Println("\nCorrelations:")
	for _, node := range current.Graph.Nodes() {
		correlations, err := current.Correlate(ctx, node.ID())
		if err != nil {
			log.Fatalf("Failed to correlate %s: %v", node.Entity.Label, err)
		}
		for _, c := range correlations {
			fmt.Printf("  %-30s -> %-30s %-10s score %.2f\n", node.Entity.Label, c.Match.Label, c.Method, c.Score)
		}
	}

	for _, m := range current.Map.Markers() {
		fmt.Printf("Marker: %s (%.4f, %.4f)\n", m.Label, m.Latitude, m.Longitude)
	}
}
