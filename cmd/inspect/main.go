// Read-only dump of the hub's badger keyspace, for poking at a live or
// stopped database from the terminal. Pass a key prefix as the only
// argument; defaults to the message namespace.
package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Netflix/go-env"
	"github.com/dgraph-io/badger/v4"
	"github.com/joho/godotenv"
	"github.com/olekukonko/tablewriter"

	"livehub/internal"
)

const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Inspect error: %v\n", err)
	}
	os.Exit(code)
}

func run() (int, error) {
	_ = godotenv.Load()
	var config internal.Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}

	prefix := "msg:"
	if len(os.Args) > 1 {
		prefix = os.Args[1]
	}

	// BypassLockGuard allows opening while the hub process holds the lock.
	opts := badger.DefaultOptions(config.BadgerFilepath).
		WithReadOnly(true).
		WithBypassLockGuard(true).
		WithLoggingLevel(badger.WARNING)

	db, err := badger.Open(opts)
	if err != nil {
		return exitRuntime, fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Key", "Namespace", "Time", "Entity", "Bytes"})
	table.SetAutoWrapText(false)

	count := 0
	err = db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		p := []byte(prefix)
		for it.Seek(p); it.ValidForPrefix(p); it.Next() {
			item := it.Item()
			err := item.Value(func(val []byte) error {
				table.Append(rowFor(string(item.Key()), val))
				count++
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return exitRuntime, err
	}

	table.Render()
	fmt.Printf("%d keys under %q\n", count, prefix)
	return exitOK, nil
}

func rowFor(key string, val []byte) []string {
	parts := strings.Split(key, ":")
	namespace := parts[0]
	timestamp := "-"
	entity := "-"

	switch {
	case namespace == "msg" && len(parts) >= 4:
		if tsNano, err := strconv.ParseInt(parts[2], 10, 64); err == nil {
			timestamp = time.Unix(0, tsNano).UTC().Format(time.TimeOnly)
		}
		entity = parts[3]
	case len(parts) >= 3:
		entity = parts[2]
	}

	return []string{key, namespace, timestamp, entity, strconv.Itoa(len(val))}
}
