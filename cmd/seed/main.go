package main

import (
	"database/sql"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/lib/pq"

	"sengine/internal/config"
)

// ANSI color codes for terminal output
const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
)

// Seed rows are tagged with this workspace so -clear can find them without
// touching real data.
const seedWorkspaceID = 9001

const (
	seedDripID     = 1
	seedCampaignID = 1
	seedNumber     = "+15550199001"
)

// Command-line flags
var (
	contactsCount = flag.Int("contacts", 12, "Number of contacts to create")
	messagesCount = flag.Int("messages", 5, "Number of future-dated scheduled messages to create")
	creditBalance = flag.Int64("credits", 100, "Starting credit balance for the demo user")
	clearData     = flag.Bool("clear", false, "Clear existing seed data before inserting")
	showHelp      = flag.Bool("help", false, "Show usage information")
)

func main() {
	flag.Parse()

	if *showHelp {
		printUsage()
		os.Exit(0)
	}

	// Load .env file (ignore error if not present)
	_ = godotenv.Load()

	printInfo("=== Sengine Database Seeder ===\n")

	cfg, err := config.Load()
	if err != nil {
		printError(fmt.Sprintf("Failed to load configuration: %v", err))
		os.Exit(1)
	}

	printInfo("Connecting to database...")
	db, err := sql.Open("postgres", cfg.GetDatabaseDSN())
	if err != nil {
		printError(fmt.Sprintf("Failed to open database connection: %v", err))
		os.Exit(1)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		printError(fmt.Sprintf("Failed to ping database: %v", err))
		os.Exit(1)
	}
	printSuccess("✓ Connected to database\n")

	if *clearData {
		if err := clearSeedData(db); err != nil {
			printError(fmt.Sprintf("Failed to clear seed data: %v", err))
			os.Exit(1)
		}
	}

	userID, err := seedUser(db, *creditBalance)
	if err != nil {
		printError(fmt.Sprintf("Failed to seed user: %v", err))
		os.Exit(1)
	}

	contactsCreated, err := seedContacts(db, userID, *contactsCount)
	if err != nil {
		printError(fmt.Sprintf("Failed to seed contacts: %v", err))
		os.Exit(1)
	}

	scheduledCreated, err := seedScheduledMessages(db, userID, *messagesCount)
	if err != nil {
		printError(fmt.Sprintf("Failed to seed scheduled messages: %v", err))
		os.Exit(1)
	}

	webhooksCreated, err := seedWebhook(db, userID)
	if err != nil {
		printError(fmt.Sprintf("Failed to seed webhook: %v", err))
		os.Exit(1)
	}

	printInfo("\n=== Seeding Summary ===")
	printSuccess(fmt.Sprintf("✓ Demo user ID: %d", userID))
	printSuccess(fmt.Sprintf("✓ Contacts created: %d", contactsCreated))
	printSuccess(fmt.Sprintf("✓ Scheduled messages created: %d", scheduledCreated))
	printSuccess(fmt.Sprintf("✓ Webhooks created: %d", webhooksCreated))
	printInfo("\nSeeding completed successfully!")
}

// clearSeedData removes rows tagged with the seed workspace
func clearSeedData(db *sql.DB) error {
	printWarning("Clearing existing seed data...")

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	statements := []string{
		`DELETE FROM webhook_deliveries WHERE webhook_id IN (SELECT id FROM webhooks WHERE workspace_id = $1)`,
		`DELETE FROM webhooks WHERE workspace_id = $1`,
		`DELETE FROM drip_contacts WHERE contact_id IN (SELECT id FROM contacts WHERE workspace_id = $1)`,
		`DELETE FROM scheduled_messages WHERE workspace_id = $1`,
		`DELETE FROM messages WHERE workspace_id = $1`,
		`DELETE FROM opt_outs WHERE user_id IN (SELECT id FROM users WHERE workspace_id = $1)`,
		`DELETE FROM contacts WHERE workspace_id = $1`,
		`DELETE FROM credit_transactions WHERE user_id IN (SELECT id FROM users WHERE workspace_id = $1)`,
		`DELETE FROM user_credits WHERE user_id IN (SELECT id FROM users WHERE workspace_id = $1)`,
		`DELETE FROM user_numbers WHERE user_id IN (SELECT id FROM users WHERE workspace_id = $1)`,
		`DELETE FROM users WHERE workspace_id = $1`,
	}

	for _, stmt := range statements {
		if _, err := tx.Exec(stmt, seedWorkspaceID); err != nil {
			return fmt.Errorf("failed to clear seed data: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	printSuccess("✓ Seed data cleared\n")
	return nil
}

// seedUser creates the demo tenant with an active sending number and a
// starting credit balance. Reuses the existing demo user when present.
func seedUser(db *sql.DB, balance int64) (int64, error) {
	printInfo("Seeding demo user...")

	var userID int64
	err := db.QueryRow(
		`SELECT id FROM users WHERE workspace_id = $1 ORDER BY id LIMIT 1`,
		seedWorkspaceID,
	).Scan(&userID)
	if err == sql.ErrNoRows {
		err = db.QueryRow(
			`INSERT INTO users (workspace_id, messaging_status) VALUES ($1, 'active') RETURNING id`,
			seedWorkspaceID,
		).Scan(&userID)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to ensure demo user: %w", err)
	}

	var numberCount int
	err = db.QueryRow(
		`SELECT COUNT(*) FROM user_numbers WHERE user_id = $1 AND phone = $2`,
		userID, seedNumber,
	).Scan(&numberCount)
	if err != nil {
		return 0, fmt.Errorf("failed to check sending number: %w", err)
	}
	if numberCount == 0 {
		_, err = db.Exec(
			`INSERT INTO user_numbers (user_id, phone, status) VALUES ($1, $2, 'active')`,
			userID, seedNumber,
		)
		if err != nil {
			return 0, fmt.Errorf("failed to insert sending number: %w", err)
		}
	}

	_, err = db.Exec(
		`INSERT INTO user_credits (user_id, balance) VALUES ($1, $2)
		 ON CONFLICT (user_id) DO NOTHING`,
		userID, balance,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert credit balance: %w", err)
	}

	printSuccess(fmt.Sprintf("✓ Demo user ready (number %s, %d credits)", seedNumber, balance))
	return userID, nil
}

// seedContacts generates and inserts contact data
func seedContacts(db *sql.DB, userID int64, count int) (int, error) {
	printInfo(fmt.Sprintf("Seeding %d contacts...", count))

	firstNames := []string{"Michael", "Sophia", "James", "Olivia", "Daniel", "Emma", "Benjamin", "Ava", "Lucas", "Mia", "Noah", "Isabella", "William", "Charlotte", "Alexander"}
	lastNames := []string{"Reyes", "Nguyen", "Okafor", "Silva", "Haddad", "Kowalski", "Ivanov", "Tanaka", "Mbeki", "Larsen", "Moreau", "Castillo", "Bergman", "Osei", "Duarte"}

	created := 0
	for i := 1; i <= count; i++ {
		phone := fmt.Sprintf("+1555010%04d", i)

		// Varied data with some NULL fields
		var firstName, lastName *string

		if i%10 != 1 { // 90% have first name
			firstName = stringPtr(firstNames[i%len(firstNames)])
		}
		if i%3 != 0 { // 66% have last name
			lastName = stringPtr(lastNames[i%len(lastNames)])
		}

		// ON CONFLICT for idempotency
		query := `
			INSERT INTO contacts (user_id, workspace_id, phone, first_name, last_name, open_chat)
			VALUES ($1, $2, $3, $4, $5, TRUE)
			ON CONFLICT (user_id, phone) DO NOTHING
		`

		result, err := db.Exec(query, userID, seedWorkspaceID, phone, firstName, lastName)
		if err != nil {
			return created, fmt.Errorf("failed to insert contact %s: %w", phone, err)
		}

		rowsAffected, _ := result.RowsAffected()
		if rowsAffected > 0 {
			created++
		}
	}

	printSuccess(fmt.Sprintf("✓ Seeded %d contacts (skipped %d existing)", created, count-created))
	return created, nil
}

// seedScheduledMessages enrolls seeded contacts in the demo drip with
// future-dated pending rows the scheduler will pick up.
func seedScheduledMessages(db *sql.DB, userID int64, count int) (int, error) {
	printInfo(fmt.Sprintf("Seeding %d scheduled messages...", count))

	var pending int
	err := db.QueryRow(
		`SELECT COUNT(*) FROM scheduled_messages WHERE drip_id = $1 AND user_id = $2 AND status = 'pending'`,
		seedDripID, userID,
	).Scan(&pending)
	if err != nil {
		return 0, fmt.Errorf("failed to check pending messages: %w", err)
	}
	if pending > 0 {
		printWarning(fmt.Sprintf("Skipping: %d pending seed messages already exist", pending))
		return 0, nil
	}

	rows, err := db.Query(
		`SELECT id, phone FROM contacts WHERE user_id = $1 AND workspace_id = $2 ORDER BY id LIMIT $3`,
		userID, seedWorkspaceID, count,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to list seed contacts: %w", err)
	}
	defer rows.Close()

	type target struct {
		id    int64
		phone string
	}
	var targets []target
	for rows.Next() {
		var t target
		if err := rows.Scan(&t.id, &t.phone); err != nil {
			return 0, fmt.Errorf("failed to scan contact: %w", err)
		}
		targets = append(targets, t)
	}

	body := "Hi [first], your weekly update from the demo drip is here."

	created := 0
	for i, t := range targets {
		var dripContactID int64
		err := db.QueryRow(
			`INSERT INTO drip_contacts (drip_id, contact_id, status) VALUES ($1, $2, 0) RETURNING id`,
			seedDripID, t.id,
		).Scan(&dripContactID)
		if err != nil {
			return created, fmt.Errorf("failed to insert drip contact: %w", err)
		}

		scheduledAt := time.Now().Add(time.Duration(i+2) * time.Minute)
		_, err = db.Exec(
			`INSERT INTO scheduled_messages
				(user_id, workspace_id, contact_id, drip_id, campaign_id, drip_contact_id,
				 from_number, to_number, body, scheduled_at, status)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, 'pending')`,
			userID, seedWorkspaceID, t.id, seedDripID, seedCampaignID, dripContactID,
			seedNumber, t.phone, body, scheduledAt,
		)
		if err != nil {
			return created, fmt.Errorf("failed to insert scheduled message: %w", err)
		}
		created++
	}

	printSuccess(fmt.Sprintf("✓ Seeded %d scheduled messages (first due in ~2m)", created))
	return created, nil
}

// seedWebhook registers one subscription covering every emitted event so the
// dispatcher path can be exercised end to end.
func seedWebhook(db *sql.DB, userID int64) (int, error) {
	printInfo("Seeding demo webhook...")

	var existing int
	err := db.QueryRow(
		`SELECT COUNT(*) FROM webhooks WHERE user_id = $1 AND workspace_id = $2`,
		userID, seedWorkspaceID,
	).Scan(&existing)
	if err != nil {
		return 0, fmt.Errorf("failed to check webhooks: %w", err)
	}
	if existing > 0 {
		printWarning("Skipping: demo webhook already exists")
		return 0, nil
	}

	events := pq.StringArray{
		"outbound_message",
		"message.inbound",
		"message.delivered",
		"message.failed",
		"contact.optout",
		"contact.optin",
	}

	_, err = db.Exec(
		`INSERT INTO webhooks (user_id, workspace_id, url, secret, events, status)
		 VALUES ($1, $2, $3, $4, $5, 'active')`,
		userID, seedWorkspaceID, "http://localhost:9090/webhook-sink", uuid.New().String(), events,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert webhook: %w", err)
	}

	printSuccess("✓ Seeded demo webhook")
	return 1, nil
}

// Helper functions

// stringPtr returns a pointer to a string
func stringPtr(s string) *string {
	return &s
}

// printSuccess prints a success message in green
func printSuccess(msg string) {
	fmt.Printf("%s%s%s\n", colorGreen, msg, colorReset)
}

// printError prints an error message in red
func printError(msg string) {
	fmt.Fprintf(os.Stderr, "%s%s%s\n", colorRed, msg, colorReset)
}

// printInfo prints an info message in cyan
func printInfo(msg string) {
	fmt.Printf("%s%s%s\n", colorCyan, msg, colorReset)
}

// printWarning prints a warning message in yellow
func printWarning(msg string) {
	fmt.Printf("%s%s%s\n", colorYellow, msg, colorReset)
}

// printUsage displays usage information
func printUsage() {
	printInfo("=== Sengine Database Seeder ===\n")
	fmt.Println("Usage: go run ./cmd/seed [flags]")
	fmt.Println("\nFlags:")
	flag.PrintDefaults()
	fmt.Println("\nExamples:")
	fmt.Println("  go run ./cmd/seed")
	fmt.Println("  go run ./cmd/seed -contacts=20 -messages=10")
	fmt.Println("  go run ./cmd/seed -clear")
	fmt.Println("  go run ./cmd/seed -clear -credits=500")
	fmt.Println("\nNotes:")
	fmt.Println("  - Seed rows are tagged with workspace 9001 so -clear only touches them")
	fmt.Println("  - Contacts use phone pattern +1555010XXXX")
	fmt.Println("  - Scheduled messages are future-dated so the scheduler picks them up")
	fmt.Println("  - The seeder is idempotent; rerunning will not duplicate data")
}
