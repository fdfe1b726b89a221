package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/groeimetai/billing/internal/domain"
	"github.com/groeimetai/billing/internal/repository"
	"github.com/joho/godotenv"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Seeds a local database with demo operators and a few open invoices so the
// payment flow can be exercised end to end against the mock provider.
func main() {
	_ = godotenv.Load()

	uri := os.Getenv("MONGODB_URI")
	if uri == "" {
		uri = "mongodb://localhost:27017"
	}
	database := os.Getenv("MONGODB_DATABASE")
	if database == "" {
		database = "groeimetai_billing"
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		log.Fatalf("Failed to connect to Mongo: %v", err)
	}
	defer client.Disconnect(ctx)

	db := client.Database(database)
	userRepo := repository.NewMongoUserRepository(db)
	invoiceRepo := repository.NewMongoInvoiceRepository(db)

	users := []domain.User{
		{FirebaseUID: "seed_admin", Email: "admin@groeimetai.io", Name: "Demo Admin", Role: domain.RoleAdmin},
		{FirebaseUID: "seed_consultant", Email: "consultant@groeimetai.io", Name: "Demo Consultant", Role: domain.RoleConsultant},
	}
	for i := range users {
		existing := db.Collection("users").FindOne(context.Background(), bson.M{"email": users[i].Email})
		if existing.Err() == nil {
			fmt.Printf("Skipping existing user: %s\n", users[i].Email)
			continue
		}
		if err := userRepo.Create(context.Background(), &users[i]); err != nil {
			log.Printf("Error creating user %s: %v\n", users[i].Email, err)
			continue
		}
		fmt.Printf("Created user: %s (%s)\n", users[i].Email, users[i].Role)
	}

	now := time.Now().UTC()
	invoices := []domain.Invoice{
		{
			ClientID: "client_acme",
			Status:   domain.InvoiceStatusSent,
			Items: []domain.LineItem{
				{Description: "AI strategie consult", Quantity: 10, UnitPrice: 10000, Tax: 21000, Total: 121000},
			},
			Financial: domain.Financial{Currency: "EUR"},
			IssueDate: now.AddDate(0, 0, -5),
			DueDate:   now.AddDate(0, 0, 25),
		},
		{
			ClientID: "client_beta",
			Status:   domain.InvoiceStatusOverdue,
			Items: []domain.LineItem{
				{Description: "Workshop prompt engineering", Quantity: 1, UnitPrice: 75000, Tax: 15750, Total: 90750},
			},
			Financial: domain.Financial{Currency: "EUR"},
			IssueDate: now.AddDate(0, -2, 0),
			DueDate:   now.AddDate(0, -1, 0),
		},
		{
			ClientID: "client_gamma",
			Status:   domain.InvoiceStatusDraft,
			Items: []domain.LineItem{
				{Description: "Maandelijkse retainer", Quantity: 1, UnitPrice: 200000, Tax: 42000, Total: 242000},
			},
			Financial: domain.Financial{Currency: "EUR"},
			IssueDate: now,
			DueDate:   now.AddDate(0, 0, 30),
		},
	}
	for i := range invoices {
		invoices[i].Recalculate()
		if err := invoiceRepo.Create(context.Background(), &invoices[i]); err != nil {
			log.Printf("Error creating invoice for %s: %v\n", invoices[i].ClientID, err)
			continue
		}
		fmt.Printf("Created invoice: %s (%s, %d cents)\n",
			invoices[i].InvoiceNumber, invoices[i].Status, invoices[i].Financial.Total)
	}

	fmt.Println("Seeding Complete.")
}
