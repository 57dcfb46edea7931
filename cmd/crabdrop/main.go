// Command crabdrop is a terminal shell over the engine: the same command
// surface the desktop front-end invokes, driven from the CLI. It subscribes
// to the progress event bus and renders events as log lines.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/alsofelix/crabdrop/internal/commands"
	"github.com/alsofelix/crabdrop/internal/config"
	"github.com/alsofelix/crabdrop/internal/events"
	"github.com/alsofelix/crabdrop/internal/metrics"
)

type app struct {
	logger *logrus.Logger
	facade *commands.Facade
	bus    *events.Bus
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	a := &app{}
	var verbose bool

	root := &cobra.Command{
		Use:           "crabdrop",
		Short:         "S3 file manager with client-side encryption",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			a.logger = logrus.New()
			a.logger.SetLevel(logrus.WarnLevel)
			if verbose {
				a.logger.SetLevel(logrus.DebugLevel)
			}

			store, err := config.NewStore(a.logger)
			if err != nil {
				return err
			}

			a.bus = events.NewBus()
			a.facade = commands.New(store, a.bus, a.logger, metrics.NewWithRegistry(prometheus.NewRegistry()))
			if err := a.facade.Reload(); err != nil {
				return err
			}

			go func() {
				if err := store.Watch(func() {
					if err := a.facade.Reload(); err != nil {
						a.logger.WithError(err).Warn("Failed to reload configuration")
					}
				}); err != nil {
					a.logger.WithError(err).Debug("Config watcher stopped")
				}
			}()

			return nil
		},
	}
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(
		newCheckCmd(a),
		newLsCmd(a),
		newPutCmd(a),
		newGetCmd(a),
		newRmCmd(a),
		newMkdirCmd(a),
		newURLCmd(a),
		newConfigCmd(a),
	)
	return root
}

// watchEvents prints progress events until cancel is called.
func (a *app) watchEvents() func() {
	ch, cancel := a.bus.Subscribe(256)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for ev := range ch {
			switch p := ev.Payload.(type) {
			case events.UploadStart:
				if p.IsFolder {
					fmt.Printf("uploading folder %s (%d files)\n", p.Filename, p.TotalFiles)
				} else if p.Multipart {
					fmt.Printf("uploading %s (%d parts)\n", p.Filename, p.TotalParts)
				} else {
					fmt.Printf("uploading %s\n", p.Filename)
				}
			case events.FolderProgress:
				fmt.Printf("  [%d/%d] %s\n", p.CurrentFile, p.TotalFiles, p.Filename)
			case events.UploadProgress:
				fmt.Printf("  part %d/%d\n", p.Part, p.TotalParts)
			case events.DownloadStart:
				fmt.Printf("downloading %s (%d bytes)\n", p.Filename, p.TotalBytes)
			case events.DownloadComplete:
				fmt.Printf("downloaded %s (%d bytes)\n", p.Filename, p.TotalBytes)
			}
		}
	}()
	return func() {
		cancel()
		<-done
	}
}

func newCheckCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Verify the configured bucket is reachable",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.facade.TestConnection(context.Background()); err != nil {
				return err
			}
			fmt.Println("ok")
			return nil
		},
	}
}

func newLsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "ls [prefix]",
		Short: "List files under a prefix",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			prefix := ""
			if len(args) == 1 {
				prefix = args[0]
			}
			files, err := a.facade.ListFiles(context.Background(), prefix)
			if err != nil {
				return err
			}
			for _, f := range files {
				kind := "-"
				if f.IsFolder {
					kind = "d"
				}
				lock := " "
				if f.Encrypted {
					lock = "*"
				}
				size := int64(0)
				if f.Size != nil {
					size = *f.Size
				}
				fmt.Printf("%s%s %12d  %s\n", kind, lock, size, f.Name)
			}
			return nil
		},
	}
}

func newPutCmd(a *app) *cobra.Command {
	var encrypt bool
	cmd := &cobra.Command{
		Use:   "put <local-path> [prefix]",
		Short: "Upload a file or directory",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			prefix := ""
			if len(args) == 2 {
				prefix = args[1]
			}
			stop := a.watchEvents()
			defer stop()
			return a.facade.UploadPath(context.Background(), args[0], prefix, uuid.NewString(), encrypt)
		},
	}
	cmd.Flags().BoolVarP(&encrypt, "encrypt", "e", false, "encrypt with the configured passphrase")
	return cmd
}

func newGetCmd(a *app) *cobra.Command {
	var encrypted bool
	cmd := &cobra.Command{
		Use:   "get <key> <filename>",
		Short: "Download an object into the download directory",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			stop := a.watchEvents()
			defer stop()
			return a.facade.DownloadFile(context.Background(), args[0], args[1], encrypted)
		},
	}
	cmd.Flags().BoolVarP(&encrypted, "encrypted", "e", false, "object was uploaded encrypted")
	return cmd
}

func newRmCmd(a *app) *cobra.Command {
	var folder bool
	cmd := &cobra.Command{
		Use:   "rm <key>",
		Short: "Delete an object, or a whole prefix with --folder",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.facade.DeleteFile(context.Background(), args[0], folder)
		},
	}
	cmd.Flags().BoolVar(&folder, "folder", false, "delete every object under the prefix")
	return cmd
}

func newMkdirCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "mkdir <key>",
		Short: "Create an explicit folder marker",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.facade.UploadFolder(context.Background(), args[0])
		},
	}
}

func newURLCmd(a *app) *cobra.Command {
	var expiry int64
	cmd := &cobra.Command{
		Use:   "url <key>",
		Short: "Generate a presigned GET URL",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			url, err := a.facade.GeneratePresignedURL(context.Background(), args[0], expiry)
			if err != nil {
				return err
			}
			fmt.Println(url)
			return nil
		},
	}
	cmd.Flags().Int64Var(&expiry, "expiry", 900, "URL validity in seconds")
	return cmd
}

func newConfigCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show or update the stored configuration",
	}

	show := &cobra.Command{
		Use:   "show",
		Short: "Print the configuration with secrets redacted",
		RunE: func(cmd *cobra.Command, args []string) error {
			pub, err := a.facade.GetConfig()
			if err != nil {
				return err
			}
			fmt.Printf("endpoint:    %s\n", pub.Storage.Endpoint)
			fmt.Printf("bucket:      %s\n", pub.Storage.Bucket)
			fmt.Printf("region:      %s\n", pub.Storage.Region)
			fmt.Printf("access key:  %s\n", pub.AccessKeyID)
			fmt.Printf("secret:      %v\n", pub.HasSecret)
			fmt.Printf("passphrase:  %v\n", pub.HasEncryptionPassphrase)
			return nil
		},
	}

	var endpoint, bucket, region, accessKey, secretKey, passphrase string
	set := &cobra.Command{
		Use:   "set",
		Short: "Update the configuration; empty secrets keep their stored values",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.facade.SaveConfig(endpoint, bucket, region, accessKey, secretKey, passphrase)
		},
	}
	set.Flags().StringVar(&endpoint, "endpoint", "", "S3 endpoint URL (empty for AWS)")
	set.Flags().StringVar(&bucket, "bucket", "", "bucket name")
	set.Flags().StringVar(&region, "region", "", "region")
	set.Flags().StringVar(&accessKey, "access-key", "", "access key id")
	set.Flags().StringVar(&secretKey, "secret-key", "", "secret access key")
	set.Flags().StringVar(&passphrase, "passphrase", "", "encryption passphrase")

	cmd.AddCommand(show, set)
	return cmd
}
