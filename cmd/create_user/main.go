package main

import (
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"
	"golang.org/x/crypto/bcrypt"

	"shepherd/models"
	"shepherd/process/store"
)

func main() {
	if len(os.Args) < 3 {
		fmt.Println("usage: go run ./cmd/create_user <username> <password> [role]")
		os.Exit(2)
	}
	username := os.Args[1]
	password := os.Args[2]
	roleName := "user"
	if len(os.Args) > 3 {
		roleName = os.Args[3]
	}

	_ = godotenv.Load()
	db, err := store.Open(os.Getenv("DB_DSN"))
	if err != nil {
		log.Fatalf("failed to open db: %v", err)
	}

	// ensure role exists
	var role models.Role
	if err := db.Where("name = ?", roleName).First(&role).Error; err != nil {
		role = models.Role{Name: roleName}
		if err := db.Create(&role).Error; err != nil {
			log.Fatalf("failed to create role %s: %v", roleName, err)
		}
	}

	// check existing
	var existing models.User
	if err := db.Where("username = ?", username).First(&existing).Error; err == nil {
		fmt.Printf("user %s already exists (id=%d)\n", username, existing.ID)
		os.Exit(0)
	}

	hpw, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		log.Fatalf("bcrypt failed: %v", err)
	}
	rid := role.ID
	user := models.User{Username: username, HashedPassword: hpw, RoleID: &rid}
	if err := db.Create(&user).Error; err != nil {
		log.Fatalf("failed to create user: %v", err)
	}
	fmt.Printf("created user %s id=%d role=%s\n", username, user.ID, roleName)
}
