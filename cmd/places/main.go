// Command places is an interactive demo for the nearby-places search.
// It prompts for a coordinate and prints both search modes.
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/pawpoint/pawpoint/internal/places"
)

func main() {
	reader := bufio.NewReader(os.Stdin)

	lat, err := promptFloat(reader, "Latitude: ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid latitude: %v\n", err)
		os.Exit(1)
	}
	lon, err := promptFloat(reader, "Longitude: ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid longitude: %v\n", err)
		os.Exit(1)
	}
	radius := promptInt(reader, "Radius meters (e.g. 1500): ", 1500)
	topN := promptInt(reader, "Top N (e.g. 10): ", 10)

	service := places.NewService(places.NewClient(places.DefaultClientConfig()))
	ctx := context.Background()

	fmt.Println("\n--- Nearby veterinary ---")
	vets, err := service.SearchNearby(ctx, lat, lon, radius, topN, string(places.CategoryVeterinary))
	if err != nil {
		fmt.Fprintf(os.Stderr, "veterinary search failed: %v\n", err)
		os.Exit(1)
	}
	printResults(vets)

	fmt.Println("\n--- Nearby pet-friendly food (strict) ---")
	foods, err := service.SearchNearbyPetFriendlyFood(ctx, lat, lon, radius, topN, true)
	if err != nil {
		fmt.Fprintf(os.Stderr, "food search failed: %v\n", err)
		os.Exit(1)
	}
	printResults(foods)
}

func printResults(results []places.Result) {
	for i, r := range results {
		fmt.Printf("%02d. %s | %s | rating=%s | %dm\n",
			i+1, orDash(r.Name), orDash(r.Address), ratingString(r.Rating), r.DistanceM)
	}
	if len(results) == 0 {
		fmt.Println("(no results)")
	}
}

func orDash(s *string) string {
	if s == nil || *s == "" {
		return "-"
	}
	return *s
}

func ratingString(r *float64) string {
	if r == nil {
		return "-"
	}
	return strconv.FormatFloat(*r, 'f', 1, 64)
}

func promptFloat(reader *bufio.Reader, prompt string) (float64, error) {
	fmt.Print(prompt)
	line, err := reader.ReadString('\n')
	if err != nil {
		return 0, err
	}
	return strconv.ParseFloat(strings.TrimSpace(line), 64)
}

func promptInt(reader *bufio.Reader, prompt string, fallback int) int {
	fmt.Print(prompt)
	line, err := reader.ReadString('\n')
	if err != nil {
		return fallback
	}
	line = strings.TrimSpace(line)
	if line == "" {
		return fallback
	}
	n, err := strconv.Atoi(line)
	if err != nil {
		return fallback
	}
	return n
}
