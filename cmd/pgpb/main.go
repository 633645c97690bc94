// Copyright 2026 The PageBackup Authors.
//
// SPDX-License-Identifier: Apache-2.0

// The pgpb CLI drives the page-level backup engine: it walks a source
// directory tree, backs it up block-by-block through internal/driver,
// stores the resulting manifest and frame files in an internal/backend
// archive, and can restore or validate them back.
package main

import (
	"context"
	"fmt"
	"io"
	"io/ioutil"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/pgprobackup-go/pagebackup/internal/backend"
	"github.com/pgprobackup-go/pagebackup/internal/backupio"
	"github.com/pgprobackup-go/pagebackup/internal/driver"
	"github.com/pgprobackup-go/pagebackup/internal/manifest"
	"github.com/pgprobackup-go/pagebackup/internal/page"
	"github.com/pgprobackup-go/pagebackup/internal/pblog"
	"github.com/pgprobackup-go/pagebackup/internal/pbmetrics"
	"github.com/pgprobackup-go/pagebackup/internal/remoteagent"
)

var versionGitCommit string
var versionBuildTime string

const programVersion = "2.6.0"

func parseBackendConfig(backendConfigJSON, backendConfigFile string) (string, error) {
	if backendConfigJSON != "" && backendConfigFile != "" {
		return "", fmt.Errorf("--backend-config conflicts with --backend-config-file")
	}
	if backendConfigFile != "" {
		raw, err := ioutil.ReadFile(backendConfigFile)
		if err != nil {
			return "", errors.Wrap(err, "read backend config file")
		}
		backendConfigJSON = string(raw)
	}
	return backendConfigJSON, nil
}

func rootContext() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		logrus.Warn("received interrupt, cancelling in-flight operations")
		cancel()
	}()
	return ctx
}

func walkRegularFiles(root string) ([]string, error) {
	var rel []string
	err := filepath.Walk(root, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		r, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		rel = append(rel, filepath.ToSlash(r))
		return nil
	})
	return rel, errors.Wrap(err, "walk source tree")
}

func parseMode(s string) (backupio.Mode, error) {
	switch strings.ToUpper(s) {
	case "FULL":
		return backupio.ModeFull, nil
	case "PAGE":
		return backupio.ModePage, nil
	case "DELTA":
		return backupio.ModeDelta, nil
	case "PTRACK":
		return backupio.ModePtrack, nil
	default:
		return 0, fmt.Errorf("unknown backup mode %q, expected FULL, PAGE, DELTA, or PTRACK", s)
	}
}

func parseCompressAlg(s string) (page.CompressAlg, error) {
	switch strings.ToLower(s) {
	case "", "none":
		return page.CompressNone, nil
	case "zlib":
		return page.CompressZLIB, nil
	case "pglz":
		return page.CompressPGLZ, nil
	default:
		return 0, fmt.Errorf("unknown compression algorithm %q", s)
	}
}

func backendFromFlags(c *cli.Context) (backend.Backend, error) {
	cfg, err := parseBackendConfig(c.String("backend-config"), c.String("backend-config-file"))
	if err != nil {
		return nil, err
	}
	return backend.New(c.String("backend-type"), []byte(cfg))
}

func runBackup(c *cli.Context) error {
	mode, err := parseMode(c.String("mode"))
	if err != nil {
		return err
	}
	compressAlg, err := parseCompressAlg(c.String("compress-alg"))
	if err != nil {
		return err
	}
	be, err := backendFromFlags(c)
	if err != nil {
		return err
	}

	source := c.String("source")
	relFiles, err := walkRegularFiles(source)
	if err != nil {
		return err
	}

	var parent *manifest.Manifest
	if p := c.String("parent-manifest"); p != "" {
		f, err := os.Open(p)
		if err != nil {
			return errors.Wrap(err, "open parent manifest")
		}
		parent, err = manifest.Decode(f)
		f.Close()
		if err != nil {
			return err
		}
	}

	var remote remoteagent.RemotePageSource
	if agentPath := c.String("remote-agent"); agentPath != "" {
		client, err := remoteagent.Dial(agentPath)
		if err != nil {
			return err
		}
		defer client.Close()
		remote = client
	}

	crcAlg := backupio.CRCAlgorithmForVersion(programVersion)
	parentID := ""
	var prevStartLSN uint64
	if parent != nil {
		parentID = parent.ID
		prevStartLSN = parent.StartLSN
	}
	m := manifest.New(c.String("mode"), programVersion, 0, crcAlg, parentID)

	workDir := c.String("work-dir")
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return errors.Wrap(err, "create work directory")
	}

	ctx := rootContext()

	jobs := make([]driver.BackupJob, 0, len(relFiles))
	for _, rel := range relFiles {
		existsInPrev := false
		if parent != nil {
			_, existsInPrev = parent.Lookup(rel)
		}
		jobs = append(jobs, driver.BackupJob{Opt: driver.BackupOptions{
			SourcePath:         filepath.Join(source, rel),
			DestPath:           filepath.Join(workDir, rel),
			PrevBackupStartLSN: prevStartLSN,
			Mode:               mode,
			ExistsInPrev:       existsInPrev,
			CompressAlg:        compressAlg,
			CompressLevel:      c.Int("compress-level"),
			CRCAlgorithm:       crcAlg,
			ChecksumEnabled:    c.Bool("checksum"),
			MissingOK:          true,
			Remote:             remote,
		}})
		if err := os.MkdirAll(filepath.Dir(filepath.Join(workDir, rel)), 0o755); err != nil {
			return errors.Wrap(err, "create work subdirectory")
		}
	}

	entries, err := driver.BackupFiles(ctx, c.Int("concurrency"), jobs)
	if err != nil {
		return errors.Wrap(err, "backup")
	}
	for i, entry := range entries {
		entry.RelPath = relFiles[i]
		if !entry.Missing() && !entry.Unchanged() {
			stagedPath := filepath.Join(workDir, entry.RelPath)
			info, err := os.Stat(stagedPath)
			if err != nil {
				return errors.Wrapf(err, "stat staged file %s", stagedPath)
			}
			d, err := be.Upload(ctx, m.ID+"/"+entry.RelPath, stagedPath, info.Size())
			if err != nil {
				return errors.Wrapf(err, "upload %s", entry.RelPath)
			}
			entry.Digest = d
		}
		m.AddFile(entry)
	}

	manifestPath := filepath.Join(workDir, "manifest.json")
	mf, err := os.Create(manifestPath)
	if err != nil {
		return errors.Wrap(err, "create manifest file")
	}
	if err := manifest.Encode(mf, m); err != nil {
		mf.Close()
		return err
	}
	if err := mf.Close(); err != nil {
		return errors.Wrap(err, "close manifest file")
	}
	info, err := os.Stat(manifestPath)
	if err != nil {
		return err
	}
	if _, err := be.Upload(ctx, m.ID+"/manifest.json", manifestPath, info.Size()); err != nil {
		return errors.Wrap(err, "upload manifest")
	}

	logrus.WithField("backup_id", m.ID).Info("backup complete")
	return nil
}

func runRestore(c *cli.Context) error {
	be, err := backendFromFlags(c)
	if err != nil {
		return err
	}
	ctx := rootContext()

	var chainManifests []*manifest.Manifest
	for _, id := range c.StringSlice("chain") {
		rc, err := be.Fetch(ctx, id+"/manifest.json", "")
		if err != nil {
			return errors.Wrapf(err, "fetch manifest for %s", id)
		}
		m, err := manifest.Decode(rc)
		rc.Close()
		if err != nil {
			return err
		}
		chainManifests = append(chainManifests, m)
	}
	if len(chainManifests) == 0 {
		return fmt.Errorf("--chain must name at least one backup id, oldest first")
	}

	dest := c.String("dest")
	seen := map[string]bool{}
	var jobs []driver.RestoreJob
	for _, m := range chainManifests {
		for _, f := range m.Files {
			if seen[f.RelPath] {
				continue
			}
			seen[f.RelPath] = true

			var layers []driver.BackupLayer
			for _, layer := range chainManifests {
				layerM := layer
				layers = append(layers, driver.BackupLayer{
					Manifest: layerM,
					OpenFrame: func(relPath string) (io.ReadCloser, error) {
						entry, ok := layerM.Lookup(relPath)
						if !ok {
							return nil, os.ErrNotExist
						}
						return be.Fetch(ctx, layerM.ID+"/"+relPath, entry.Digest)
					},
				})
			}

			jobs = append(jobs, driver.RestoreJob{Opt: driver.RestoreOptions{
				Chain:   layers,
				RelPath: f.RelPath,
				ToPath:  filepath.Join(dest, f.RelPath),
			}})
		}
	}

	if err := os.MkdirAll(dest, 0o755); err != nil {
		return errors.Wrap(err, "create restore destination")
	}
	for _, job := range jobs {
		if err := os.MkdirAll(filepath.Dir(job.Opt.ToPath), 0o755); err != nil {
			return errors.Wrap(err, "create restore subdirectory")
		}
	}

	if err := driver.RestoreFiles(ctx, c.Int("concurrency"), jobs); err != nil {
		return errors.Wrap(err, "restore")
	}
	logrus.Info("restore complete")
	return nil
}

func runValidate(c *cli.Context) error {
	ctx := rootContext()

	if src := c.String("source"); src != "" {
		files, err := walkRegularFiles(src)
		if err != nil {
			return err
		}
		allClean := true
		for _, rel := range files {
			clean, err := driver.CheckDataFile(ctx, filepath.Join(src, rel))
			if err != nil {
				return errors.Wrapf(err, "check %s", rel)
			}
			if !clean {
				allClean = false
				logrus.WithField("file", rel).Error("page corruption detected")
			}
		}
		if !allClean {
			return fmt.Errorf("validation failed: corrupt pages found")
		}
		logrus.Info("all pages valid")
		return nil
	}

	be, err := backendFromFlags(c)
	if err != nil {
		return err
	}
	backupID := c.String("backup-id")
	rc, err := be.Fetch(ctx, backupID+"/manifest.json", "")
	if err != nil {
		return errors.Wrap(err, "fetch manifest")
	}
	m, err := manifest.Decode(rc)
	rc.Close()
	if err != nil {
		return err
	}

	allOK := true
	for _, f := range m.Files {
		if f.Missing() || f.Unchanged() {
			continue
		}
		body, err := be.Fetch(ctx, backupID+"/"+f.RelPath, f.Digest)
		if err != nil {
			return errors.Wrapf(err, "fetch %s", f.RelPath)
		}
		ok, err := driver.CheckFilePages(ctx, body, f, c.Uint64("stop-lsn"), m.ProgramVersion)
		body.Close()
		if err != nil {
			return errors.Wrapf(err, "check %s", f.RelPath)
		}
		if !ok {
			allOK = false
			logrus.WithField("file", f.RelPath).Error("backup file failed validation")
		}
	}
	if !allOK {
		return fmt.Errorf("validation failed: one or more backup files are invalid")
	}
	logrus.Info("backup is valid")
	return nil
}

func main() {
	version := fmt.Sprintf("%s.%s", versionGitCommit, versionBuildTime)
	pbmetrics.Register()

	app := &cli.App{
		Name:    "pgpb",
		Usage:   "page-level incremental backup and restore engine",
		Version: version,
		Before: func(c *cli.Context) error {
			return pblog.Setup(c.String("log-level"))
		},
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "log-level", Value: "info", Usage: "log level (panic, fatal, error, warn, info, debug, trace)", EnvVars: []string{"PGPB_LOG_LEVEL"}},
		},
		Commands: []*cli.Command{
			{
				Name:  "backup",
				Usage: "back up a data directory, one relation segment at a time",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "source", Required: true, Usage: "source data directory"},
					&cli.StringFlag{Name: "work-dir", Value: "./pgpb-work", Usage: "local staging directory for frame files"},
					&cli.StringFlag{Name: "mode", Value: "FULL", Usage: "backup mode: FULL, PAGE, DELTA, PTRACK"},
					&cli.StringFlag{Name: "parent-manifest", Usage: "path to the parent backup's manifest, required for PAGE/DELTA/PTRACK"},
					&cli.StringFlag{Name: "backend-type", Value: "local", Usage: "archive backend: local, oss, s3"},
					&cli.StringFlag{Name: "backend-config", Usage: "archive backend JSON config"},
					&cli.StringFlag{Name: "backend-config-file", TakesFile: true, Usage: "archive backend JSON config file"},
					&cli.StringFlag{Name: "compress-alg", Value: "zlib", Usage: "page compression: none, zlib, pglz"},
					&cli.IntFlag{Name: "compress-level", Value: 6, Usage: "compression level (not applied: the codecs compress at their default level)"},
					&cli.BoolFlag{Name: "checksum", Value: true, Usage: "validate page checksums during read"},
					&cli.IntFlag{Name: "concurrency", Value: 4, Usage: "number of files backed up in parallel"},
					&cli.StringFlag{Name: "remote-agent", Usage: "path to a remote-agent plugin binary, for remote source hosts"},
				},
				Action: runBackup,
			},
			{
				Name:  "restore",
				Usage: "restore a data directory from a backup chain",
				Flags: []cli.Flag{
					&cli.StringSliceFlag{Name: "chain", Required: true, Usage: "backup ids to replay, oldest (FULL) first"},
					&cli.StringFlag{Name: "dest", Required: true, Usage: "restore destination directory"},
					&cli.StringFlag{Name: "backend-type", Value: "local", Usage: "archive backend: local, oss, s3"},
					&cli.StringFlag{Name: "backend-config", Usage: "archive backend JSON config"},
					&cli.StringFlag{Name: "backend-config-file", TakesFile: true, Usage: "archive backend JSON config file"},
					&cli.IntFlag{Name: "concurrency", Value: 4, Usage: "number of files restored in parallel"},
				},
				Action: runRestore,
			},
			{
				Name:  "validate",
				Usage: "validate a live data directory or a stored backup",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "source", Usage: "live data directory to check, instead of a stored backup"},
					&cli.StringFlag{Name: "backup-id", Usage: "stored backup id to validate"},
					&cli.Uint64Flag{Name: "stop-lsn", Usage: "warn about pages whose LSN exceeds this value"},
					&cli.StringFlag{Name: "backend-type", Value: "local", Usage: "archive backend: local, oss, s3"},
					&cli.StringFlag{Name: "backend-config", Usage: "archive backend JSON config"},
					&cli.StringFlag{Name: "backend-config-file", TakesFile: true, Usage: "archive backend JSON config file"},
				},
				Action: runValidate,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		logrus.WithError(err).Fatal("pgpb failed")
	}
}
