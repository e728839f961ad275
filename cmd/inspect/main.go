// Command inspect dumps the contents of a chathub BadgerDB in a
// readable table. It opens the database read-only and bypasses the lock
// guard, so it can run while the server holds the directory.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/gookit/color"
	"github.com/olekukonko/tablewriter"
)

type storedMessage struct {
	ID        string `json:"id"`
	Room      string `json:"room,omitempty"`
	Sender    string `json:"sender"`
	Recipient string `json:"recipient,omitempty"`
	Body      string `json:"message"`
	Direct    bool   `json:"is_dm"`
	System    bool   `json:"system"`
	At        int64  `json:"at"`
}

type storedRoom struct {
	Name    string `json:"name"`
	Private bool   `json:"private"`
	Key     string `json:"key,omitempty"`
}

func main() {
	dbPath := flag.String("db", "./data/badger", "Path to badger DB")
	prefix := flag.String("prefix", "", "Prefix to scan (msg:, dm:, room: or empty for everything)")
	flag.Parse()

	db, err := openDB(*dbPath)
	if err != nil {
		log.Fatal("Error while opening Badger: ", err)
	}
	defer db.Close()

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Key", "Type", "Timestamp", "Scope", "Sender", "Detail"})
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")

	err = db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefixBytes := []byte(*prefix)
		for it.Seek(prefixBytes); it.ValidForPrefix(prefixBytes); it.Next() {
			item := it.Item()
			rawKey := string(item.Key())

			err := item.Value(func(v []byte) error {
				table.Append(describe(rawKey, v))
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		log.Fatal(err)
	}

	table.Render()
}

// describe renders one table row, keyed off the key prefix.
func describe(rawKey string, value []byte) []string {
	switch {
	case strings.HasPrefix(rawKey, "room:"):
		var room storedRoom
		if err := json.Unmarshal(value, &room); err != nil {
			return errorRow(rawKey, err)
		}
		kind := color.Green.Sprint("PUBLIC")
		if room.Private {
			kind = color.Yellow.Sprint("PRIVATE")
		}
		return []string{rawKey, color.Cyan.Sprint("ROOM"), "", room.Name, "", kind}

	case strings.HasPrefix(rawKey, "msg:"), strings.HasPrefix(rawKey, "dm:"):
		var m storedMessage
		if err := json.Unmarshal(value, &m); err != nil {
			return errorRow(rawKey, err)
		}

		kind := color.Green.Sprint("MSG")
		scope := m.Room
		if m.Direct {
			kind = color.Magenta.Sprint("DM")
			scope = fmt.Sprintf("%s <-> %s", m.Sender, m.Recipient)
		}
		if m.System {
			kind = color.Gray.Sprint("SYSTEM")
		}

		detail := m.Body
		if strings.HasPrefix(strings.TrimSpace(m.Body), "{") && json.Valid([]byte(m.Body)) {
			kind = color.Blue.Sprint("FILE")
			detail = fmt.Sprintf("file payload (%d bytes)", len(m.Body))
		}
		if len(detail) > 60 {
			detail = detail[:60] + "..."
		}

		at := time.Unix(0, m.At).UTC().Format("2006-01-02 15:04:05")
		return []string{rawKey, kind, at, scope, m.Sender, detail}
	}

	return []string{rawKey, "?", "", "", "", fmt.Sprintf("%d bytes", len(value))}
}

func errorRow(rawKey string, err error) []string {
	return []string{rawKey, color.Red.Sprint("ERR"), "", "", "", err.Error()}
}

func openDB(path string) (*badger.DB, error) {
	opts := badger.DefaultOptions(path).
		WithReadOnly(true).
		WithLogger(nil).
		WithBypassLockGuard(true)
	return badger.Open(opts)
}
