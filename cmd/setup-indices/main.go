// Command setup-indices installs the message index template and
// creates the per-channel indices, so ingestion never writes into a
// dynamically mapped index.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"strings"

	"github.com/slacklytics/slacklytics/internal/config"
	"github.com/slacklytics/slacklytics/pkg/logger"
	"github.com/slacklytics/slacklytics/pkg/slackapi"
	"github.com/slacklytics/slacklytics/pkg/store"
)

func main() {
	var (
		names = flag.String("names", "", "Comma-separated channel names to create indices for (skips channel lookup)")
	)
	flag.Parse()

	logger.Init()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	ctx := context.Background()
	st, err := store.NewES(ctx, store.Config{
		Addresses: cfg.Elasticsearch.Addresses,
		Username:  cfg.Elasticsearch.Username,
		Password:  cfg.Elasticsearch.Password,
	})
	if err != nil {
		log.Fatalf("Failed to connect to Elasticsearch: %v", err)
	}

	if err := st.CreateTemplate(ctx, store.TemplateName, store.MessageTemplate()); err != nil {
		log.Fatalf("Failed to install index template: %v", err)
	}
	fmt.Printf("Installed index template %q\n", store.TemplateName)

	channelNames := splitList(*names)
	if len(channelNames) == 0 {
		slackClient := slackapi.New(cfg.Slack.BotToken)
		for _, id := range cfg.Slack.Channels {
			channel, err := slackClient.ChannelInfo(ctx, id)
			if err != nil {
				log.Fatalf("Failed to resolve channel %s: %v", id, err)
			}
			channelNames = append(channelNames, channel.Name)
		}
	}

	for _, name := range channelNames {
		index := store.IndexName(name)
		if err := st.CreateIndex(ctx, index, nil); err != nil {
			log.Fatalf("Failed to create index %s: %v", index, err)
		}
		fmt.Printf("Created index %s\n", index)
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
