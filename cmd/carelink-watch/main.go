// carelink-watch follows one service request from the command line as
// either party. It polls the HTTP API the same way the apps do and logs
// every transition, incoming call, new message and peer position.
//
// With --share-location it also reads JSON samples, one per line, from
// stdin and reports them as the actor's own position until stdin closes.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"carelink/internal/actor"
	"carelink/internal/domain"
	"carelink/internal/models"
	"carelink/internal/service"

	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		baseURL        string
		token          string
		role           string
		userID         uint
		requestID      uint
		conversationID uint
		interval       time.Duration
		watchLocations bool
		shareLocation  bool
	)

	flagSet := pflag.NewFlagSet("carelink-watch", pflag.ContinueOnError)
	flagSet.StringVar(&baseURL, "server", "http://localhost:8099", "API base URL")
	flagSet.StringVar(&token, "token", os.Getenv("CARELINK_TOKEN"), "bearer token (default $CARELINK_TOKEN)")
	flagSet.StringVar(&role, "role", "client", "acting role: client or professional")
	flagSet.UintVar(&userID, "user", 0, "acting user ID")
	flagSet.UintVar(&requestID, "request", 0, "service request ID to follow")
	flagSet.UintVar(&conversationID, "conversation", 0, "also follow messages in this conversation")
	flagSet.DurationVar(&interval, "interval", 0, "poll interval override")
	flagSet.BoolVar(&watchLocations, "locations", false, "poll location snapshots")
	flagSet.BoolVar(&shareLocation, "share-location", false, "report JSON samples read from stdin")

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}
	if token == "" {
		return fmt.Errorf("--token is required")
	}
	if requestID == 0 || userID == 0 {
		return fmt.Errorf("--request and --user are required")
	}
	role, err := parseRole(role)
	if err != nil {
		return err
	}

	self := domain.Actor{UserID: userID, Role: role}
	api := actor.NewAPIClient(baseURL, token)

	sigCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	group, ctx := errgroup.WithContext(sigCtx)

	requests := actor.NewRequestWatcher(actor.RequestWatcherConfig{
		Actor:     self,
		RequestID: requestID,
		Requests:  api,
		Payments:  api,
		Interval:  interval,
		Observer:  logObserver(),
	})
	group.Go(func() error { return requests.Run(ctx) })

	if conversationID != 0 {
		messages := actor.NewMessageWatcher(self, conversationID, api, nil, interval)
		messages.OnMessages = func(fresh []models.Message, unread int) {
			for _, m := range fresh {
				log.Printf("[CHAT] #%d from=%d %s%s", m.ID, m.SenderID, m.Content, m.MediaURL)
			}
			log.Printf("[CHAT] unread=%d", unread)
		}
		group.Go(func() error { return messages.Run(ctx) })
	}

	if watchLocations {
		group.Go(func() error {
			return actor.WatchLocations(ctx, self, requestID, api, nil, interval, func(s *service.LocationSnapshot) {
				if s.Peer == nil {
					log.Printf("[LOCATION] peer has not shared yet")
					return
				}
				if s.DistanceMeters != nil {
					log.Printf("[LOCATION] peer at %.5f,%.5f distance=%.0fm eta=%ds %s",
						s.Peer.Latitude, s.Peer.Longitude, *s.DistanceMeters, s.ETASeconds, s.Proximity)
					return
				}
				log.Printf("[LOCATION] peer at %.5f,%.5f", s.Peer.Latitude, s.Peer.Longitude)
			})
		})
	}

	if shareLocation {
		reporter := actor.NewLocationReporter(self, requestID, actor.NewLineGeolocator(os.Stdin), api)
		group.Go(func() error {
			if err := reporter.Run(ctx); err != nil {
				log.Printf("[LOCATION] sharing stopped: %v", err)
			}
			return nil
		})
	}

	if err := group.Wait(); err != nil && sigCtx.Err() == nil {
		return err
	}
	return nil
}

// parseRole accepts a role name in any case.
func parseRole(s string) (string, error) {
	switch role := strings.ToUpper(strings.TrimSpace(s)); role {
	case domain.RoleClient, domain.RoleProfessional:
		return role, nil
	}
	return "", fmt.Errorf("--role must be client or professional, got %q", s)
}

func logObserver() actor.RequestObserver {
	return actor.RequestObserver{
		OnStatusChange: func(prev, cur *service.RequestView) {
			from := "-"
			if prev != nil {
				from = prev.Status
			}
			log.Printf("[REQUEST] #%d %s -> %s (version %d)", cur.ID, from, cur.Status, cur.Version)
		},
		OnGateCleared: func(cur *service.RequestView) {
			log.Printf("[PAYMENT] #%d paid; messaging and calls unlocked", cur.ID)
		},
		OnIncomingCall: func(cur *service.RequestView) {
			log.Printf("[VIDEO] incoming call in room %s", cur.VideoCallRoomID)
		},
		OnCallActive: func(cur *service.RequestView) {
			log.Printf("[VIDEO] call active in room %s", cur.VideoCallRoomID)
		},
		OnCallEnded: func(cur *service.RequestView) {
			log.Printf("[VIDEO] call ended (%s)", cur.VideoCallStatus)
		},
		OnConflict: func(cur *service.RequestView) {
			log.Printf("[REQUEST] #%d changed elsewhere; now %s", cur.ID, cur.Status)
		},
	}
}
