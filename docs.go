package main

import (
	"context"
	"fmt"
	"io"
	"mime"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/elevateanalytics/star-go/internal/cache"
	"github.com/elevateanalytics/star-go/internal/storage"
)

func newDocsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "docs",
		Short: "Work with stored documents",
	}

	cmd.AddCommand(newDocsGetCmd())
	cmd.AddCommand(newDocsPutCmd())
	cmd.AddCommand(newDocsUploadCmd())
	cmd.AddCommand(newDocsSignCmd())
	cmd.AddCommand(newDocsURLCmd())
	cmd.AddCommand(newDocsPushCmd())

	return cmd
}

func newDocsGetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get <bucket> <path>",
		Short: "Download a document",
		Args:  cobra.ExactArgs(2),
		RunE:  runDocsGet,
	}

	cmd.Flags().StringP("output", "o", "", "write to a file instead of stdout")
	cmd.Flags().Bool("offline", false, "read the last pulled snapshot instead of the backend")

	return cmd
}

func newDocsPutCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "put <bucket> <path> <file>",
		Short: "Upload a file to an exact object path",
		Args:  cobra.ExactArgs(3),
		RunE:  runDocsPut,
	}

	cmd.Flags().String("content-type", "", "override the detected content type")
	cmd.Flags().Bool("no-overwrite", false, "fail when the object already exists")

	return cmd
}

func newDocsUploadCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "upload <bucket> <file>",
		Short: "Upload a file under a generated object name",
		Long: `Upload a file under a generated object name.

The object lands at <prefix>/<uuid><ext>, so repeated uploads of the
same file never collide.`,
		Args: cobra.ExactArgs(2),
		RunE: runDocsUpload,
	}

	cmd.Flags().String("prefix", "", "folder to upload into")
	cmd.Flags().String("content-type", "", "override the detected content type")

	return cmd
}

func newDocsSignCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sign <bucket> <path>",
		Short: "Create a time-limited download URL",
		Args:  cobra.ExactArgs(2),
		RunE:  runDocsSign,
	}

	cmd.Flags().Duration("ttl", 15*time.Minute, "how long the URL stays valid")

	return cmd
}

func newDocsURLCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "url <bucket> <path>",
		Short: "Print the public URL of an object",
		Args:  cobra.ExactArgs(2),
		RunE:  runDocsURL,
	}
}

func newDocsPushCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "push <bucket> <dir>",
		Short: "Mirror a local directory into a bucket",
		Long: `Mirror a local directory into a bucket.

Every regular file under <dir> is uploaded to the matching object
path. With --watch the command keeps running and re-uploads files as
they change, until interrupted.`,
		Args: cobra.ExactArgs(2),
		RunE: runDocsPush,
	}

	cmd.Flags().String("prefix", "", "object path prefix inside the bucket")
	cmd.Flags().Bool("watch", false, "keep running and upload files as they change")

	return cmd
}

func runDocsGet(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}

	bucket, objectPath := args[0], args[1]

	out := cmd.OutOrStdout()

	if path, err := cmd.Flags().GetString("output"); err != nil {
		return err
	} else if path != "" {
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("creating %s: %w", path, err)
		}
		defer f.Close()

		out = f
	}

	if offline, err := cmd.Flags().GetBool("offline"); err != nil {
		return err
	} else if offline {
		store, err := cache.Open(a.cfg.CachePath, a.logger)
		if err != nil {
			return err
		}
		defer store.Close()

		return writeObjectSnapshot(cmd.Context(), store, bucket, objectPath, out)
	}

	found, err := a.storage.Download(cmd.Context(), bucket, objectPath, out)
	if err != nil {
		return err
	}

	if !found {
		return fmt.Errorf("object %s/%s does not exist", bucket, objectPath)
	}

	return nil
}

// writeObjectSnapshot serves a document from the last pulled snapshot.
func writeObjectSnapshot(ctx context.Context, store *cache.Store, bucket, objectPath string, w io.Writer) error {
	snap, found, err := store.LoadObject(ctx, bucket, objectPath)
	if err != nil {
		return err
	}

	if !found {
		return fmt.Errorf("no snapshot for %s/%s (run 'star pull')", bucket, objectPath)
	}

	statusf("snapshot from %s\n", snap.FetchedAt.Format("2006-01-02 15:04:05"))

	_, err = w.Write(snap.Payload)

	return err
}

// detectContentType derives the upload content type from the flag or
// the file extension, defaulting to octet-stream.
func detectContentType(cmd *cobra.Command, file string) (string, error) {
	ct, err := cmd.Flags().GetString("content-type")
	if err != nil {
		return "", err
	}

	if ct != "" {
		return ct, nil
	}

	if byExt := mime.TypeByExtension(filepath.Ext(file)); byExt != "" {
		return byExt, nil
	}

	return "application/octet-stream", nil
}

func uploadFile(ctx context.Context, a *app, bucket, objectPath, file, contentType string, overwrite bool) error {
	f, err := os.Open(file)
	if err != nil {
		return fmt.Errorf("opening %s: %w", file, err)
	}
	defer f.Close()

	return a.storage.Upload(ctx, bucket, objectPath, f, contentType, overwrite)
}

func runDocsPut(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}

	bucket, objectPath, file := args[0], args[1], args[2]

	contentType, err := detectContentType(cmd, file)
	if err != nil {
		return err
	}

	noOverwrite, err := cmd.Flags().GetBool("no-overwrite")
	if err != nil {
		return err
	}

	if err := uploadFile(cmd.Context(), a, bucket, objectPath, file, contentType, !noOverwrite); err != nil {
		return err
	}

	statusf("uploaded %s/%s\n", bucket, objectPath)

	return nil
}

func runDocsUpload(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}

	bucket, file := args[0], args[1]

	prefix, err := cmd.Flags().GetString("prefix")
	if err != nil {
		return err
	}

	contentType, err := detectContentType(cmd, file)
	if err != nil {
		return err
	}

	name := uuid.NewString() + strings.ToLower(filepath.Ext(file))

	objectPath := name
	if prefix != "" {
		objectPath = storage.EncodeObjectPath(strings.Split(prefix, "/")...) + "/" + name
	}

	if err := uploadFile(cmd.Context(), a, bucket, objectPath, file, contentType, false); err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), objectPath)

	return nil
}

func runDocsSign(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}

	ttl, err := cmd.Flags().GetDuration("ttl")
	if err != nil {
		return err
	}

	signed, err := a.storage.SignedURL(cmd.Context(), args[0], args[1], ttl)
	if err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), signed)

	return nil
}

func runDocsURL(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), a.storage.PublicURL(args[0], args[1]))

	return nil
}

// objectPathFor maps a local file under root onto its object path.
func objectPathFor(root, prefix, file string) (string, error) {
	rel, err := filepath.Rel(root, file)
	if err != nil {
		return "", err
	}

	segments := strings.Split(filepath.ToSlash(rel), "/")
	if prefix != "" {
		segments = append(strings.Split(prefix, "/"), segments...)
	}

	return storage.EncodeObjectPath(segments...), nil
}

// pushDir uploads every regular file under root.
func pushDir(ctx context.Context, a *app, bucket, root, prefix string) (int, error) {
	uploaded := 0

	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}

		objectPath, err := objectPathFor(root, prefix, path)
		if err != nil {
			return err
		}

		contentType := mime.TypeByExtension(filepath.Ext(path))
		if contentType == "" {
			contentType = "application/octet-stream"
		}

		if err := uploadFile(ctx, a, bucket, objectPath, path, contentType, true); err != nil {
			return fmt.Errorf("uploading %s: %w", path, err)
		}

		a.logger.Info("pushed", "bucket", bucket, "object", objectPath)
		uploaded++

		return nil
	})

	return uploaded, err
}

func runDocsPush(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}

	bucket, dir := args[0], args[1]

	prefix, err := cmd.Flags().GetString("prefix")
	if err != nil {
		return err
	}

	info, err := os.Stat(dir)
	if err != nil {
		return err
	}

	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", dir)
	}

	uploaded, err := pushDir(cmd.Context(), a, bucket, dir, prefix)
	if err != nil {
		return err
	}

	statusf("pushed %d file(s)\n", uploaded)

	watch, err := cmd.Flags().GetBool("watch")
	if err != nil {
		return err
	}

	if !watch {
		return nil
	}

	return watchDir(cmd.Context(), a, bucket, dir, prefix)
}

// watchDir re-uploads files as the filesystem reports changes, until
// the context is cancelled or an interrupt arrives.
func watchDir(ctx context.Context, a *app, bucket, root, prefix string) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("starting watcher: %w", err)
	}
	defer watcher.Close()

	// Watch every subdirectory; fsnotify does not recurse on its own.
	err = filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if d.IsDir() {
			return watcher.Add(path)
		}

		return nil
	})
	if err != nil {
		return err
	}

	statusf("watching %s, press Ctrl-C to stop\n", root)

	for {
		select {
		case <-ctx.Done():
			return nil
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}

			a.logger.Warn("watch error", "error", err)
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}

			handleWatchEvent(ctx, a, watcher, bucket, root, prefix, event)
		}
	}
}

func handleWatchEvent(ctx context.Context, a *app, watcher *fsnotify.Watcher, bucket, root, prefix string, event fsnotify.Event) {
	if !event.Op.Has(fsnotify.Create) && !event.Op.Has(fsnotify.Write) {
		return
	}

	info, err := os.Stat(event.Name)
	if err != nil {
		return
	}

	if info.IsDir() {
		if event.Op.Has(fsnotify.Create) {
			if err := watcher.Add(event.Name); err != nil {
				a.logger.Warn("watching new directory", "dir", event.Name, "error", err)
			}
		}

		return
	}

	if !info.Mode().IsRegular() {
		return
	}

	objectPath, err := objectPathFor(root, prefix, event.Name)
	if err != nil {
		a.logger.Warn("mapping changed file", "file", event.Name, "error", err)
		return
	}

	contentType := mime.TypeByExtension(filepath.Ext(event.Name))
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	if err := uploadFile(ctx, a, bucket, objectPath, event.Name, contentType, true); err != nil {
		a.logger.Warn("uploading changed file", "file", event.Name, "error", err)
		return
	}

	a.logger.Info("pushed", "bucket", bucket, "object", objectPath)
}

