package main

import (
	"context"
	"fmt"
	"os"

	"mailforge/backend/internal/auth"
	jwtpkg "mailforge/backend/internal/auth/jwt"
	"mailforge/backend/internal/config"
	"mailforge/backend/internal/domain"
	"mailforge/backend/internal/storage"
	"mailforge/backend/internal/storage/memory"
	sqlstore "mailforge/backend/internal/storage/sql"
)

func main() {
	if len(os.Args) < 4 {
		fmt.Println("Usage: create-admin <email> <password> <username> [admin|operator]")
		os.Exit(1)
	}

	email := os.Args[1]
	password := os.Args[2]
	username := os.Args[3]
	role := domain.RoleAdmin
	if len(os.Args) >= 5 && os.Args[4] == "operator" {
		role = domain.RoleOperator
	}

	// 加载配置
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// 创建存储
	var store storage.Store
	if cfg.Database.Driver != "" && cfg.Database.DSN != "" {
		sqlStore, err := sqlstore.NewStore(context.Background(), sqlstore.Options{
			Driver:          cfg.Database.Driver,
			DSN:             cfg.Database.DSN,
			MaxOpenConns:    cfg.Database.MaxOpenConns,
			MaxIdleConns:    cfg.Database.MaxIdleConns,
			ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		})
		if err != nil {
			fmt.Printf("Failed to connect to database: %v\n", err)
			os.Exit(1)
		}
		store = sqlStore
	} else {
		fmt.Println("Warning: database not configured, user will exist only in memory.")
		store = memory.NewStore()
	}
	defer store.Close()

	jwtManager := jwtpkg.NewManager(
		cfg.JWT.Secret,
		cfg.JWT.Issuer,
		cfg.JWT.AccessExpiry,
		cfg.JWT.RefreshExpiry,
	)
	authService := auth.NewService(store, jwtManager)

	user, err := authService.CreateUser(auth.CreateUserInput{
		Email:    email,
		Username: username,
		Password: password,
		Role:     role,
	})
	if err != nil {
		fmt.Printf("Failed to create user: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Admin user created successfully!\n")
	fmt.Printf("  ID:       %s\n", user.ID)
	fmt.Printf("  Email:    %s\n", user.Email)
	fmt.Printf("  Username: %s\n", user.Username)
	fmt.Printf("  Role:     %s\n", user.Role)
}
