package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"

	"github.com/mdsync/mdsync/internal/utils"
	"github.com/mdsync/mdsync/pkg/platforms"
	"github.com/mdsync/mdsync/pkg/platforms/mangadex"
	"github.com/mdsync/mdsync/pkg/platforms/mangaupdates"
	"github.com/mdsync/mdsync/pkg/musync"
)

func main() {
	// Usage: go run *.go -md-user u -md-pass p -md-client-id id -md-client-secret s -mu-user u -mu-pass p

	mdUser := flag.String("md-user", "", "MangaDex username")
	mdPass := flag.String("md-pass", "", "MangaDex password")
	mdClientID := flag.String("md-client-id", "", "MangaDex personal client ID")
	mdClientSecret := flag.String("md-client-secret", "", "MangaDex personal client secret")
	muUser := flag.String("mu-user", "", "MangaUpdates username")
	muPass := flag.String("mu-pass", "", "MangaUpdates password")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	md := mangadex.NewClient(mangadex.Credentials{
		Username:     *mdUser,
		Password:     *mdPass,
		ClientID:     *mdClientID,
		ClientSecret: *mdClientSecret,
	}, platforms.WithThreshold(mangadex.DefaultThreshold))
	defer md.Close()

	mangas, err := md.Follows(ctx, mangadex.FollowOptions{})
	if err != nil {
		fmt.Println(err)
		return
	}

	mu := mangaupdates.NewClient(mangaupdates.Credentials{Username: *muUser, Password: *muPass},
		platforms.WithThreshold(mangaupdates.DefaultThreshold))
	defer mu.Close()

	report, err := musync.CreateReport("mangaupdates-errors.txt")
	if err != nil {
		fmt.Println(err)
		return
	}
	defer report.Close()

	result, err := musync.Run(ctx, musync.Config{
		Target: mu,
		Report: report,
		Log:    utils.Log,
	}, mangas)
	if err != nil {
		fmt.Println(err)
	}
	if result != nil {
		fmt.Printf("%d added, %d skipped, %d failed\n", result.Added, result.Skipped, result.Failed())
	}
}
