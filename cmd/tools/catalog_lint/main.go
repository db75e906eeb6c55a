package main

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/noah-isme/backend-checkout/internal/catalog"
)

// catalog_lint parses every .txt catalog under a directory (default configs).
// Exit code 0 = ok, 1 = violation, 2 = other error.
func main() {
	root := "configs"
	if len(os.Args) > 1 {
		root = os.Args[1]
	}
	deny, err := scan(root)
	if err != nil {
		fmt.Fprintf(os.Stderr, "catalog_lint error: %v\n", err)
		os.Exit(2)
	}
	if len(deny) > 0 {
		for _, v := range deny {
			fmt.Fprintf(os.Stderr, "VIOLATION: %s\n", v)
		}
		os.Exit(1)
	}
	fmt.Println("catalog_lint: OK")
}

func scan(dir string) ([]string, error) {
	var violations []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || filepath.Ext(path) != ".txt" {
			return nil
		}
		if msg, err := checkFile(path); err != nil {
			return err
		} else if msg != "" {
			violations = append(violations, msg)
		}
		return nil
	})
	return violations, err
}

// checkFile returns a violation message, or "" when the catalog parses.
func checkFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer func() {
		_ = f.Close()
	}()
	c, err := catalog.ParseReader(f)
	if err != nil {
		return fmt.Sprintf("%s: %v", path, err), nil
	}
	if c.ItemCount() == 0 {
		return fmt.Sprintf("%s: no items declared", path), nil
	}
	return "", nil
}
