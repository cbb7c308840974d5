package applicator

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/codenerd-labs/evolution-engine/internal/fscap"
	"github.com/codenerd-labs/evolution-engine/internal/logging"
)

// backupManifest is written as YAML alongside the copied files in each
// backups/backup-<timestamp>/ directory.
type backupManifest struct {
	Timestamp string            `json:"-" yaml:"timestamp"`
	Files     map[string]string `yaml:"files"` // original path -> backup-relative file name
}

// snapshotTargets copies the fixed small set of well-known targets this
// batch is about to mutate into a new timestamped backup directory, then
// prunes backups beyond MaxBackups. Best-effort: a failure here is logged,
// never fatal to the apply itself.
func (a *Applicator) snapshotTargets(ops []forwardOp) error {
	paths := targetPaths(ops)
	if len(paths) == 0 {
		return nil
	}

	stamp := a.now().UTC().Format("20060102T150405.000000000Z")
	dir := filepath.Join(a.workspace, ".evolution", a.cfg.BackupDir, "backup-"+stamp)

	manifest := backupManifest{Timestamp: stamp, Files: make(map[string]string)}
	for i, p := range paths {
		content, exists, err := a.fs.ReadFile(a.resolve(p))
		if err != nil || !exists {
			continue // nothing to snapshot for targets that don't exist yet
		}
		backupName := fmt.Sprintf("file-%d", i)
		if err := a.fs.WriteFile(filepath.Join(dir, backupName), content); err != nil {
			return fmt.Errorf("backup copy of %s: %w", p, err)
		}
		manifest.Files[p] = backupName
	}
	if len(manifest.Files) == 0 {
		return nil
	}

	manifestBytes, err := yaml.Marshal(manifest)
	if err != nil {
		return fmt.Errorf("marshal backup manifest: %w", err)
	}
	if err := a.fs.WriteFile(filepath.Join(dir, "manifest.yaml"), manifestBytes); err != nil {
		return fmt.Errorf("write backup manifest: %w", err)
	}

	a.pruneBackups()
	return nil
}

// pruneBackups removes the oldest backup directories beyond MaxBackups.
// Only runs when the underlying FileSystem supports enumeration
// (fscap.Lister); both fscap.RealFS and fscap.MemFS do.
func (a *Applicator) pruneBackups() {
	if a.cfg.MaxBackups <= 0 {
		return
	}
	lister, ok := a.fs.(fscap.Lister)
	if !ok {
		return
	}

	root := filepath.Join(a.workspace, ".evolution", a.cfg.BackupDir)
	entries := lister.ListByPrefix(filepath.Join(root, "backup-"))

	dirs := make(map[string]bool)
	for _, e := range entries {
		rel := strings.TrimPrefix(e, root+string(filepath.Separator))
		parts := strings.SplitN(rel, string(filepath.Separator), 2)
		if len(parts) > 0 {
			dirs[parts[0]] = true
		}
	}
	names := make([]string, 0, len(dirs))
	for d := range dirs {
		names = append(names, d)
	}
	sort.Strings(names) // "backup-<RFC3339-ish timestamp>" sorts chronologically

	if len(names) <= a.cfg.MaxBackups {
		return
	}
	excess := names[:len(names)-a.cfg.MaxBackups]
	for _, name := range excess {
		for _, e := range entries {
			if strings.HasPrefix(e, filepath.Join(root, name)) {
				if err := a.fs.Remove(e); err != nil {
					logging.Applicator("failed pruning old backup %s: %v", e, err)
				}
			}
		}
	}
}

// LatestBackupDir reports the most recently created backup directory, or ""
// if none exist yet or the underlying FileSystem can't enumerate. Backup
// directory names sort chronologically, same as pruneBackups relies on.
func (a *Applicator) LatestBackupDir() string {
	lister, ok := a.fs.(fscap.Lister)
	if !ok {
		return ""
	}
	root := filepath.Join(a.workspace, ".evolution", a.cfg.BackupDir)
	entries := lister.ListByPrefix(filepath.Join(root, "backup-"))

	dirs := make(map[string]bool)
	for _, e := range entries {
		rel := strings.TrimPrefix(e, root+string(filepath.Separator))
		parts := strings.SplitN(rel, string(filepath.Separator), 2)
		if len(parts) > 0 {
			dirs[parts[0]] = true
		}
	}
	names := make([]string, 0, len(dirs))
	for d := range dirs {
		names = append(names, d)
	}
	if len(names) == 0 {
		return ""
	}
	sort.Strings(names)
	return filepath.Join(root, names[len(names)-1])
}
