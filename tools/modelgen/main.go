package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"gorm.io/driver/postgres"
	"gorm.io/gen"
	"gorm.io/gorm"
)

// mearthTables are the tables created by migrations/. schema_migrations is
// owned by the migrator and has no model.
var mearthTables = []string{"agent_states", "domain_events", "battle_outcomes", "kv_entries"}

// fieldNames keeps generated struct fields on the names the repositories use.
var fieldNames = map[string]map[string]string{
	"agent_states": {"character_key": "Character"},
}

func main() {
	var dsn, out, tables string
	flag.StringVar(&dsn, "dsn", os.Getenv("MEARTH_DB_DSN"), "postgres dsn")
	flag.StringVar(&out, "out", "internal/adapter/repo/gorm/model", "output dir for generated models")
	flag.StringVar(&tables, "tables", strings.Join(mearthTables, ","), "comma separated tables to generate")
	flag.Parse()

	if dsn == "" {
		log.Fatal("missing --dsn or MEARTH_DB_DSN")
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		log.Fatalf("open postgres: %v", err)
	}

	g := gen.NewGenerator(gen.Config{
		OutPath:      out,
		ModelPkgPath: "model",
		Mode:         gen.WithoutContext,
	})
	g.UseDB(db)
	n := 0
	for _, table := range strings.Split(tables, ",") {
		table = strings.TrimSpace(table)
		if table == "" {
			continue
		}
		var opts []gen.ModelOpt
		for column, field := range fieldNames[table] {
			opts = append(opts, gen.FieldRename(column, field))
		}
		g.GenerateModel(table, opts...)
		n++
	}
	if n == 0 {
		log.Fatal("no tables to generate")
	}
	g.Execute()

	fmt.Printf("generated %d gorm models at %s\n", n, out)
}
