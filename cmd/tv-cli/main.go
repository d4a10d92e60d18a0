package main

import (
	"fmt"
	"os"

	"tripvault/crypto"
	"tripvault/native/delegate"
	"tripvault/native/factory"
)

func main() {
	args := os.Args[1:]
	if len(args) < 1 {
		printUsage()
		return
	}

	switch args[0] {
	case "generate-key":
		if len(args) < 2 {
			fmt.Println("Error: Please provide a keystore path.")
			printUsage()
			return
		}
		generateKey(args[1])
	case "show-address":
		if len(args) < 2 {
			fmt.Println("Error: Please provide a keystore path.")
			printUsage()
			return
		}
		showAddress(args[1])
	case "property-address":
		if len(args) < 2 {
			fmt.Println("Error: Please provide a listing id.")
			printUsage()
			return
		}
		addr := factory.PropertyAddress(args[1])
		fmt.Printf("Listing:  %s\n", args[1])
		fmt.Printf("Instance: %s\n", crypto.NewAddress(crypto.TVPrefix, addr[:]).String())
	case "proxy-address":
		addr := delegate.ProxyAddress()
		fmt.Printf("Delegate proxy: %s\n", crypto.NewAddress(crypto.TVPrefix, addr[:]).String())
	default:
		fmt.Printf("Unknown command: %s\n", args[0])
		printUsage()
	}
}

func generateKey(path string) {
	passphrase, ok := readPassphrase()
	if !ok {
		return
	}
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		fmt.Printf("Error generating key: %v\n", err)
		os.Exit(1)
	}
	if err := crypto.SaveToKeystore(path, key, passphrase); err != nil {
		fmt.Printf("Error saving keystore: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("New key saved to %s\n", path)
	fmt.Printf("Address: %s\n", key.PubKey().Address().String())
}

func showAddress(path string) {
	passphrase, ok := readPassphrase()
	if !ok {
		return
	}
	key, err := crypto.LoadFromKeystore(path, passphrase)
	if err != nil {
		fmt.Printf("Error loading keystore: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Address: %s\n", key.PubKey().Address().String())
}

func readPassphrase() (string, bool) {
	passphrase := os.Getenv("TV_KEYSTORE_PASSPHRASE")
	if passphrase == "" {
		fmt.Println("Error: TV_KEYSTORE_PASSPHRASE must be set.")
		return "", false
	}
	return passphrase, true
}

func printUsage() {
	fmt.Println("Usage: tv-cli <command> [arguments]")
	fmt.Println("Commands:")
	fmt.Println("  generate-key <path>        - Generate a new key and save it to an encrypted keystore file")
	fmt.Println("  show-address <path>        - Print the address held in a keystore file")
	fmt.Println("  property-address <listing> - Print the deterministic escrow instance address for a listing id")
	fmt.Println("  proxy-address              - Print the delegation proxy identity")
	fmt.Println("")
	fmt.Println("The keystore passphrase is read from TV_KEYSTORE_PASSPHRASE.")
}
