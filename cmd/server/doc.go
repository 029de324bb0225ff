// Command server runs the profile fleet backend.
//
// Configuration comes from the environment, optionally seeded from a dotenv
// file (see internal/infrastructure/config). SIGINT or SIGTERM drains the
// worker pool, closes every browser and writes the store snapshot.
//
// Usage:
//
//	server [-env .env] [-port 8000]
package main
