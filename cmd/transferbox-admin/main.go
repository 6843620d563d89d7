// transferbox-admin is the operator command line for managing data transfer
// areas and moving files in and out of them without the web frontend.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"

	"github.com/transferbox/transferbox/internal/area"
	"github.com/transferbox/transferbox/internal/audit"
	"github.com/transferbox/transferbox/internal/config"
	"github.com/transferbox/transferbox/internal/content"
	"github.com/transferbox/transferbox/internal/db"
	"github.com/transferbox/transferbox/internal/directory"
	"github.com/transferbox/transferbox/internal/transfer"
)

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: transferbox-admin [-config file] <command> [args]

Commands:
  areas                                  list all areas
  create -name N [-admins 1,2] [-observers 1,2] [-expiry days]
                                         create a shared area
  personal-box -user ID                  ensure a user's personal box exists
  list -area ID -user ID                 list an area's attachments
  upload -area ID -user ID -file PATH [-desc TEXT]
                                         upload a local file
  download -area ID -user ID -id ATT -out PATH
                                         download an attachment
  delete -area ID -user ID -id ATT       delete an attachment
`)
	os.Exit(2)
}

type env struct {
	areas   *area.Store
	service *transfer.Service
}

func main() {
	configPath := flag.String("config", "config.yaml", "path to configuration file")
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() < 1 {
		usage()
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fatal("load config: %v", err)
	}

	logger := zerolog.New(os.Stderr).With().Timestamp().Logger().Level(zerolog.WarnLevel)

	database, err := db.Open(cfg.Paths.Database, logger)
	if err != nil {
		fatal("open database: %v", err)
	}
	defer database.Close()

	dirRepo := directory.NewRepo(database.DB)
	areaStore := area.NewStore(database.DB, area.Limits{
		MaxUploadKB:         cfg.Limits.MaxUploadKB,
		PersonalBoxUploadKB: cfg.Limits.PersonalBoxUploadKB,
	}, logger)
	auditLog := audit.NewLog(database.DB, logger)
	checker := area.NewChecker(dirRepo.IsMemberOfAny)

	contentRepo, err := content.NewFSRepository(cfg.Paths.ContentRoot, logger)
	if err != nil {
		fatal("open content repository: %v", err)
	}
	contentRepo.SetChangeFunc(func(areaID int64, count int, bytes int64) {
		areaStore.UpdateAttachmentStats(areaID, count, bytes)
	})

	e := &env{
		areas:   areaStore,
		service: transfer.NewService(areaStore, checker, contentRepo, auditLog, logger),
	}

	cmd, args := flag.Arg(0), flag.Args()[1:]
	switch cmd {
	case "areas":
		err = e.cmdAreas()
	case "create":
		err = e.cmdCreate(args)
	case "personal-box":
		err = e.cmdPersonalBox(args)
	case "list":
		err = e.cmdList(args)
	case "upload":
		err = e.cmdUpload(args)
	case "download":
		err = e.cmdDownload(args)
	case "delete":
		err = e.cmdDelete(args)
	default:
		usage()
	}
	if err != nil {
		fatal("%s: %v", cmd, err)
	}
}

func (e *env) cmdAreas() error {
	areas, err := e.areas.List()
	if err != nil {
		return err
	}
	for _, a := range areas {
		kind := " "
		if a.IsPersonal() {
			kind = "P"
		}
		fmt.Printf("%5d %s %-30s %3dd %4d files %10s\n",
			a.ID, kind, a.Name, a.ExpiryDays, a.AttachmentsCount,
			humanize.Bytes(uint64(a.AttachmentsBytes)))
	}
	return nil
}

func (e *env) cmdCreate(args []string) error {
	fs := flag.NewFlagSet("create", flag.ExitOnError)
	name := fs.String("name", "", "area name")
	admins := fs.String("admins", "", "comma-separated admin user ids")
	observers := fs.String("observers", "", "comma-separated observer user ids")
	expiry := fs.Int("expiry", 0, "retention in days (0 = default)")
	fs.Parse(args)

	if *name == "" {
		return fmt.Errorf("-name is required")
	}

	a := &area.Area{
		Name:        *name,
		Kind:        area.KindShared,
		AdminIDs:    parseIDs(*admins),
		ObserverIDs: parseIDs(*observers),
		ExpiryDays:  *expiry,
	}
	if err := e.areas.Create(a); err != nil {
		return err
	}
	fmt.Printf("created area %d (%s), expires after %d days\n", a.ID, a.Name, a.ExpiryDays)
	return nil
}

func (e *env) cmdPersonalBox(args []string) error {
	fs := flag.NewFlagSet("personal-box", flag.ExitOnError)
	user := fs.Int64("user", 0, "owning user id")
	fs.Parse(args)

	if *user == 0 {
		return fmt.Errorf("-user is required")
	}
	a, err := e.areas.EnsurePersonalBox(*user)
	if err != nil {
		return err
	}
	fmt.Printf("personal box of user %d is area %d\n", *user, a.ID)
	return nil
}

func (e *env) cmdList(args []string) error {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	areaID := fs.Int64("area", 0, "area id")
	user := fs.Int64("user", 0, "acting user id")
	fs.Parse(args)

	a, atts, err := e.service.ListAttachments(*user, *areaID)
	if err != nil {
		return err
	}
	fmt.Printf("area %d: %s\n", a.ID, a.Name)
	for _, att := range atts {
		fmt.Printf("  %s  %-30s %10s  uploaded by %d at %s\n",
			att.ID, att.Filename, humanize.Bytes(uint64(att.SizeBytes)),
			att.UploaderID, att.CreatedAt.Format("2006-01-02 15:04"))
	}
	return nil
}

func (e *env) cmdUpload(args []string) error {
	fs := flag.NewFlagSet("upload", flag.ExitOnError)
	areaID := fs.Int64("area", 0, "area id")
	user := fs.Int64("user", 0, "acting user id")
	file := fs.String("file", "", "local file to upload")
	desc := fs.String("desc", "", "attachment description")
	fs.Parse(args)

	f, err := os.Open(*file)
	if err != nil {
		return err
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return err
	}

	att, err := e.service.Upload(*user, *areaID, info.Name(), *desc, info.Size(), f)
	if err != nil {
		return err
	}
	fmt.Printf("uploaded %s as attachment %s (%s)\n",
		att.Filename, att.ID, humanize.Bytes(uint64(att.SizeBytes)))
	return nil
}

func (e *env) cmdDownload(args []string) error {
	fs := flag.NewFlagSet("download", flag.ExitOnError)
	areaID := fs.Int64("area", 0, "area id")
	user := fs.Int64("user", 0, "acting user id")
	id := fs.String("id", "", "attachment id")
	out := fs.String("out", "", "output path")
	fs.Parse(args)

	rc, att, err := e.service.Download(*user, *areaID, *id)
	if err != nil {
		return err
	}
	defer rc.Close()

	path := *out
	if path == "" {
		path = att.Filename
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, rc); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	fmt.Printf("downloaded %s to %s\n", att.Filename, path)
	return nil
}

func (e *env) cmdDelete(args []string) error {
	fs := flag.NewFlagSet("delete", flag.ExitOnError)
	areaID := fs.Int64("area", 0, "area id")
	user := fs.Int64("user", 0, "acting user id")
	id := fs.String("id", "", "attachment id")
	fs.Parse(args)

	if err := e.service.Delete(*user, *areaID, *id); err != nil {
		return err
	}
	fmt.Printf("deleted attachment %s\n", *id)
	return nil
}

func parseIDs(s string) []int64 {
	if s == "" {
		return nil
	}
	var ids []int64
	for _, part := range strings.Split(s, ",") {
		id, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
		if err == nil {
			ids = append(ids, id)
		}
	}
	return ids
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "transferbox-admin: "+format+"\n", args...)
	os.Exit(1)
}
