// Command seed populates a development database with fake users, follows and posts.
package main

import (
	"context"
	"flag"
	"log"
	"time"

	"murmur/internal/config"
	"murmur/internal/database"
	"murmur/internal/seed"
)

func main() {
	numUsers := flag.Int("users", 50, "Number of users to create")
	numPosts := flag.Int("posts", 200, "Number of posts to create")
	followsPerUser := flag.Int("follows", 10, "Follow attempts per user")
	mentionEvery := flag.Int("mention-every", 5, "Mention a random user in every nth post (0 disables)")
	shouldClean := flag.Bool("clean", true, "Clean database before seeding")
	seedValue := flag.Int64("seed", time.Now().UnixNano(), "Random seed")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if cfg.IsProduction() {
		log.Fatal("Refusing to seed a production database")
	}

	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	ctx := context.Background()
	s := seed.NewSeeder(db, *seedValue)

	if *shouldClean {
		if err := s.ClearAll(ctx); err != nil {
			log.Fatalf("Cleanup failed: %v", err)
		}
	}

	res, err := s.Run(ctx, seed.Options{
		Users:          *numUsers,
		Posts:          *numPosts,
		FollowsPerUser: *followsPerUser,
		MentionEvery:   *mentionEvery,
	})
	if err != nil {
		log.Fatalf("Seeding failed: %v", err)
	}

	log.Printf("Seeded %d users, %d follows, %d posts", res.Users, res.Follows, res.Posts)
	log.Printf("All seeded users have the password: %s", seed.Password)
}
