package main

import (
	"bytes"
	"fmt"
	"log"

	"github.com/vaultkv/vaultkv/pkg/txn"
)

func main() {
	fmt.Println("VaultKV Example")
	fmt.Println("===============")
	fmt.Println()

	e := txn.NewEngine(nil)

	fmt.Println("1. Inserting a key under its own transaction...")
	t1, err := e.Begin()
	if err != nil {
		log.Fatalf("begin: %v", err)
	}
	if err := e.Insert(t1, []byte("account:alice"), []byte("100")); err != nil {
		log.Fatalf("insert: %v", err)
	}
	if err := e.Commit(t1); err != nil {
		log.Fatalf("commit: %v", err)
	}
	fmt.Println("   committed account:alice = 100")
	fmt.Println()

	fmt.Println("2. Reading it back under a fresh transaction...")
	t2, err := e.Begin()
	if err != nil {
		log.Fatalf("begin: %v", err)
	}
	buf := make([]byte, 64)
	n, err := e.Lookup(t2, []byte("account:alice"), buf)
	if err != nil {
		log.Fatalf("lookup: %v", err)
	}
	fmt.Printf("   read account:alice = %s\n", buf[:n])
	e.Abort(t2)
	fmt.Println()

	fmt.Println("3. Two transactions racing to write the same key...")
	winner, err := e.Begin()
	if err != nil {
		log.Fatalf("begin: %v", err)
	}
	loser, err := e.Begin()
	if err != nil {
		log.Fatalf("begin: %v", err)
	}

	if err := e.Insert(winner, []byte("account:alice"), []byte("150")); err != nil {
		log.Fatalf("insert: %v", err)
	}
	if err := e.Commit(winner); err != nil {
		log.Fatalf("commit: %v", err)
	}
	fmt.Println("   winner committed account:alice = 150")

	if err := e.Insert(loser, []byte("account:alice"), []byte("999")); err != nil {
		log.Fatalf("insert: %v", err)
	}
	if err := e.Commit(loser); err != nil {
		fmt.Printf("   loser's commit correctly lost: %v\n", err)
	} else {
		fmt.Println("   loser's commit unexpectedly succeeded")
	}
	fmt.Println()

	fmt.Println("4. Deleting the key...")
	t3, err := e.Begin()
	if err != nil {
		log.Fatalf("begin: %v", err)
	}
	if err := e.Delete(t3, []byte("account:alice")); err != nil {
		log.Fatalf("delete: %v", err)
	}
	if err := e.Commit(t3); err != nil {
		log.Fatalf("commit: %v", err)
	}

	t4, err := e.Begin()
	if err != nil {
		log.Fatalf("begin: %v", err)
	}
	_, err = e.Lookup(t4, []byte("account:alice"), buf)
	fmt.Printf("   lookup after delete: %v\n", err)
	e.Abort(t4)
	fmt.Println()

	fmt.Println("5. Verifying truncated reads stay correct...")
	t5, err := e.Begin()
	if err != nil {
		log.Fatalf("begin: %v", err)
	}
	if err := e.Insert(t5, []byte("blob"), bytes.Repeat([]byte("x"), 32)); err != nil {
		log.Fatalf("insert: %v", err)
	}
	if err := e.Commit(t5); err != nil {
		log.Fatalf("commit: %v", err)
	}
	t6, err := e.Begin()
	if err != nil {
		log.Fatalf("begin: %v", err)
	}
	small := make([]byte, 8)
	n, err = e.Lookup(t6, []byte("blob"), small)
	if err != nil {
		log.Fatalf("lookup: %v", err)
	}
	fmt.Printf("   truncated read returned %d bytes: %q\n", n, small[:n])
	e.Abort(t6)
	fmt.Println()

	fmt.Println("Example completed.")
}
