package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"servicehub/internal/database"
	"servicehub/internal/domain"
	jwtsvc "servicehub/internal/pkg/jwt"
	"servicehub/internal/repository"
)

// Seeds a local database with a demo marketplace: one admin, three
// customers, two providers with linked services. Prints ready-to-use bearer
// tokens when JWT_SECRET is set.
func main() {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		dsn = "servicehub.db"
	}

	db, err := database.Connect(dsn)
	if err != nil {
		log.Fatal("DB connection failed:", err)
	}

	log.Println("Running AutoMigrate...")
	if err := repository.AutoMigrate(db); err != nil {
		log.Fatal("AutoMigrate failed:", err)
	}

	log.Println("Cleaning old data...")
	db.Exec("DELETE FROM booking_status_history")
	db.Exec("DELETE FROM bookings")
	db.Exec("DELETE FROM provider_services")
	db.Exec("DELETE FROM providers")
	db.Exec("DELETE FROM services")
	db.Exec("DELETE FROM users")

	ctx := context.Background()
	users := repository.NewUserRepository(db)
	providers := repository.NewProviderRepository(db)
	services := repository.NewServiceRepository(db)

	now := time.Now().UTC()

	log.Println("Creating users...")
	admin := &domain.User{
		Name: "Admin", Email: "admin@servicehub.in", Phone: "+911112223334",
		Role: domain.RoleAdmin, IsActive: true, CreatedAt: now, UpdatedAt: now,
	}
	mustCreate(users.Create(ctx, admin))

	customers := make([]*domain.User, 0, 3)
	for i, email := range []string{"arjun@mail.in", "priya@gmail.com", "ravi@yandex.com"} {
		u := &domain.User{
			Name:  fmt.Sprintf("Customer %d", i+1),
			Email: email, Phone: fmt.Sprintf("+91987654%04d", i+1000),
			Role: domain.RoleCustomer, IsActive: true, CreatedAt: now, UpdatedAt: now,
		}
		mustCreate(users.Create(ctx, u))
		customers = append(customers, u)
	}

	log.Println("Creating services...")
	plumbing := &domain.Service{Name: "Plumbing repair", Category: "home", BasePrice: 1000, Duration: 60, IsActive: true}
	cleaning := &domain.Service{Name: "Deep cleaning", Category: "home", BasePrice: 2500, Duration: 180, IsActive: true}
	electrical := &domain.Service{Name: "Electrical inspection", Category: "home", BasePrice: 800, Duration: 45, IsActive: true}
	for _, s := range []*domain.Service{plumbing, cleaning, electrical} {
		mustCreate(services.Create(ctx, s))
	}

	log.Println("Creating providers...")
	for i := 0; i < 2; i++ {
		u := &domain.User{
			Name:  fmt.Sprintf("Provider %d", i+1),
			Email: fmt.Sprintf("provider%d@servicehub.in", i+1),
			Phone: fmt.Sprintf("+91876543%04d", i+2000),
			Role:  domain.RoleProvider, IsActive: true, CreatedAt: now, UpdatedAt: now,
		}
		mustCreate(users.Create(ctx, u))

		p := &domain.Provider{UserID: u.ID, IsAvailable: true, Rating: 4.5}
		mustCreate(providers.Create(ctx, p))

		mustCreate(providers.LinkService(ctx, p.ID, plumbing.ID))
		mustCreate(providers.LinkService(ctx, p.ID, electrical.ID))
		if i == 0 {
			mustCreate(providers.LinkService(ctx, p.ID, cleaning.ID))
		}
		log.Printf("Provider %s ready (provider_id=%d user_id=%d)", u.Email, p.ID, u.ID)
	}

	if secret := os.Getenv("JWT_SECRET"); secret != "" {
		j := jwtsvc.New(secret, 24*time.Hour)
		printToken(j, admin.ID, string(domain.RoleAdmin), admin.Email)
		printToken(j, customers[0].ID, string(domain.RoleCustomer), customers[0].Email)
	}

	log.Println("Seed complete")
}

func mustCreate(err error) {
	if err != nil {
		log.Fatal("seed failed:", err)
	}
}

func printToken(j *jwtsvc.Service, userID int64, role, email string) {
	token, err := j.GenerateToken(userID, role)
	if err != nil {
		log.Printf("token generation failed for %s: %v", email, err)
		return
	}
	log.Printf("%s token: %s", email, token)
}
