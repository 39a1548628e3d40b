// @title           Todo API
// @version         1.0
// @description     CRUD API for todo items with a uniform response envelope.
// @BasePath        /api/v1
//
// @securityDefinitions.apikey ApiKeyAuth
// @in                         header
// @name                       X-API-Key
package main

import (
	"os"

	_ "github.com/tbourn/go-todo-backend/docs"
)

// version is stamped at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
