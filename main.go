/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package main

import "github.com/callmetrics/callmetrics-api/cmd"

// @title           CallMetrics API
// @version         1.0.0
// @description     Sales call ingestion, transcription and rubric scoring
// @termsOfService  http://swagger.io/terms/
// @contact.name    API Support
// @contact.email   support@example.com
// @license.name    MIT
// @license.url     https://opensource.org/licenses/MIT
// @host            localhost:8080
// @BasePath        /
// @schemes         http https
// @securityDefinitions.apikey  BearerAuth
// @in                          header
// @name                        Authorization
// @description                 Supabase access token, sent as "Bearer <token>"
func main() {
	cmd.Execute()
}
