package config

import (
	"flag"
	"os"
	"time"

	"github.com/nickk-eng/Serialboxd/internal/flagx"
)

// parseFlags populates selected Config fields from command-line flags.
//
// Supported flags:
//
//	-a string   HTTP bind address (e.g. ":3000")
//	-g string   gRPC health bind address (e.g. ":50051")
//	-d string   PostgreSQL DSN; empty selects the in-memory store
//	-l string   log level
//	-t int      access token validity, minutes
//	-r int      refresh token validity, minutes
//	-k string   RSA private key path
//	-p string   RSA public key path
//	-w string   wrapped symmetric key path
//	-b string   S3 bucket for avatars
//	-e string   S3 base endpoint
//	-redis string  Redis address for login rate limiting
//
// Only these flags are looked at (flagx.FilterArgs), so -c/-config and flags
// of other components do not collide.
func parseFlags(config *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{"-a", "-g", "-d", "-l", "-t", "-r", "-k", "-p", "-w", "-b", "-e", "-redis"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.HTTPAddr, "a", config.HTTPAddr, "address and port to run the HTTP server")
	fs.StringVar(&config.GRPCAddr, "g", config.GRPCAddr, "address and port to run the gRPC health server")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.LogLevel, "l", config.LogLevel, "log level")

	accessTokenValidityDuration := fs.Int("t", int(config.AccessTokenValidityDuration.Minutes()), "access token validity (in minutes)")
	refreshTokenValidityDuration := fs.Int("r", int(config.RefreshTokenValidityDuration.Minutes()), "refresh token validity (in minutes)")

	fs.StringVar(&config.PrivateKeyPath, "k", config.PrivateKeyPath, "RSA private key (PEM)")
	fs.StringVar(&config.PublicKeyPath, "p", config.PublicKeyPath, "RSA public key (PEM)")
	fs.StringVar(&config.WrappedKeyPath, "w", config.WrappedKeyPath, "wrapped symmetric key file")
	fs.StringVar(&config.S3Bucket, "b", config.S3Bucket, "S3 bucket for avatars")
	fs.StringVar(&config.S3BaseEndpoint, "e", config.S3BaseEndpoint, "S3 base endpoint")
	fs.StringVar(&config.RedisAddr, "redis", config.RedisAddr, "Redis address for login rate limiting")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	config.AccessTokenValidityDuration = time.Duration(*accessTokenValidityDuration) * time.Minute
	config.RefreshTokenValidityDuration = time.Duration(*refreshTokenValidityDuration) * time.Minute
}
