// @title                      go-service-shell API
// @version                    1.0.0
// @description                Service shell with a fixed request pipeline: logging, database session, bearer authentication.
// @BasePath                   /api/v1
// @securityDefinitions.apikey BearerAuth
// @in                         header
// @name                       Authorization
package main

import (
	"os"

	"github.com/tbourn/go-service-shell/cmd/server/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
