// Package main provides the entry point for the FunnelForge platform.
// It initializes and runs a web server using the Fiber framework that serves
// a multi-tenant JSON API for funnels, organizations, members, roles and API
// keys. Every endpoint sits behind a credential resolver and a cached
// permission index; the application uses gorm for data persistence and redis
// as the shared cache.
package main
