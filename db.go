package main

import (
	"log"
	"os"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"shepherd/models"
	"shepherd/process/store"
)

var db *gorm.DB

func initDB() {
	var err error
	db, err = store.Open(os.Getenv("DB_DSN"))
	if err != nil {
		log.Fatal("failed to connect postgres database: ", err)
	}
	// roles first so the users FK can be applied safely
	if cfg.AutoMigrate {
		if err := db.AutoMigrate(&models.Role{}); err != nil {
			log.Printf("migration warning (roles): %v", err)
		}
	}
	seedRoles()

	if cfg.AutoMigrate {
		// one model at a time so a failure on one doesn't block others
		if err := db.AutoMigrate(&models.User{}); err != nil {
			log.Printf("migration warning (users): %v", err)
		}
		if err := db.AutoMigrate(&models.RefreshToken{}); err != nil {
			log.Printf("migration warning (refresh_tokens): %v", err)
		}
		if err := store.Migrate(db); err != nil {
			log.Printf("migration warning (runs): %v", err)
		}
	}
	seedDB()
}

func seedRoles() {
	roles := []models.Role{{Name: "administrator", Description: "full access"}, {Name: "user", Description: "regular user"}}
	for _, r := range roles {
		var cnt int64
		db.Model(&models.Role{}).Where("name = ?", r.Name).Count(&cnt)
		if cnt == 0 {
			db.Create(&r)
		}
	}
}

func seedDB() {
	seedRoles()

	var count int64
	db.Model(&models.User{}).Where("username = ?", "admin").Count(&count)
	if count == 0 {
		var role models.Role
		if err := db.Where("name = ?", "administrator").First(&role).Error; err != nil {
			log.Printf("failed to find administrator role: %v", err)
		}
		rid := role.ID
		admin := models.User{
			Username: "admin",
			RoleID:   &rid,
		}
		password := envOr("ADMIN_PASSWORD", "admin123")
		hashedPassword, _ := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
		admin.HashedPassword = hashedPassword
		db.Create(&admin)
		log.Println("Seeded admin user: username=admin")
	}
	ensureDocumentBase()
}

// ensureDocumentBase creates the directory report documents are resolved in.
func ensureDocumentBase() {
	if err := os.MkdirAll(cfg.DocumentBase, 0755); err != nil {
		log.Printf("failed to create document base dir %s: %v", cfg.DocumentBase, err)
	}
}
