/**
 * @description
 * Script to delete every item a user owns in the planner table: profile,
 * plans, progress history and linked accounts. Useful for clearing test users
 * so an email can be signed up again.
 *
 * Usage:
 *   go run ./cmd/purge-user <user-id>
 *
 * @dependencies
 * - Environment variables: TABLE_NAME (or DYNAMODB_TABLE), AWS_REGION
 */
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sort"
	"strings"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/goalpath/planner-api/internal/config"
	"github.com/goalpath/planner-api/internal/store"
)

func main() {
	if len(os.Args) != 2 {
		fmt.Println("Usage: go run ./cmd/purge-user <user-id>")
		os.Exit(1)
	}
	userID := strings.TrimSpace(os.Args[1])

	// Load environment variables from .env files if they exist
	for _, path := range []string{"../.env", ".env"} {
		if err := godotenv.Load(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			log.Printf("failed to load %s: %v", path, err)
		}
	}

	cfg, err := config.LoadConfig(".")
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if cfg.TableName == "" {
		log.Fatal("TABLE_NAME environment variable is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
	if err != nil {
		log.Fatalf("Failed to load AWS config: %v", err)
	}
	st := store.NewDynamoStore(dynamodb.NewFromConfig(awsCfg), cfg.TableName, zap.NewNop())

	fmt.Printf("Listing items for user %s in %s\n", userID, cfg.TableName)
	keys, err := st.ListUserKeys(ctx, userID)
	if err != nil {
		log.Fatalf("Failed to list user items: %v", err)
	}
	if len(keys) == 0 {
		fmt.Println("No items found.")
		return
	}

	counts := map[string]int{}
	for _, k := range keys {
		kind, _, _ := strings.Cut(k.SK, "#")
		counts[kind]++
	}
	kinds := make([]string, 0, len(counts))
	for kind := range counts {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)
	for _, kind := range kinds {
		fmt.Printf("  %-10s %d\n", kind, counts[kind])
	}

	fmt.Printf("\nDelete %d items? (yes/no): ", len(keys))
	confirmation, _ := bufio.NewReader(os.Stdin).ReadString('\n')
	if strings.TrimSpace(confirmation) != "yes" {
		fmt.Println("Deletion cancelled.")
		return
	}

	if err := st.DeleteKeys(ctx, keys); err != nil {
		log.Fatalf("Failed to delete items: %v", err)
	}
	fmt.Printf("Deleted %d items for user %s\n", len(keys), userID)
	fmt.Println("Note: the Cognito user, if any, must be removed separately.")
}
