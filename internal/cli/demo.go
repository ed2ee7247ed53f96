package cli

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/spf13/cobra"

	"github.com/rescale/livelist/internal/config"
	"github.com/rescale/livelist/internal/models"
	"github.com/rescale/livelist/internal/query"
)

// demoConfig declares three linked lists over the demo records. Selecting
// an artist filters albums; selecting an album filters tracks.
const demoConfig = `
[backend]
kind = memory

[defaults]
refresh_interval_ms = 1000

[list.artists]
title = Artists
identity = id
primary = name
fields = name:Artist:text:3, genre:Genre:text:2:lower, plays:Plays:text:1:number
link = albums
link_fields = artist

[list.albums]
title = Albums
identity = id
primary = title
fields = title:Album:text:3, year:Year:text:1, progress:Mastered:progress:2
filter = artist
link = tracks
link_fields = album
order_by = year
actions = play, master:pending

[list.tracks]
title = Tracks
identity = id
primary = title
fields = title:Track:text:3, seconds:Length:text:1:seconds, size:Size:text:1:bytes
filter = album
mode = chunked
chunk_size = 4
order_by = no
`

// bonusAlbum appears and disappears while the demo runs.
const bonusAlbum = "al-bonus"

type demoAlbum struct {
	id, title string
	year      int
	tracks    []string
}

var demoCatalog = []struct {
	id, name, genre string
	albums          []demoAlbum
}{
	{"ar1", "Radiohead", "Alternative", []demoAlbum{
		{"al1", "OK Computer", 1997, []string{"Airbag", "Paranoid Android", "Subterranean Homesick Alien", "Exit Music", "Let Down", "Karma Police"}},
		{"al2", "Kid A", 2000, []string{"Everything in Its Right Place", "Kid A", "The National Anthem", "How to Disappear Completely", "Idioteque"}},
		{"al3", "In Rainbows", 2007, []string{"15 Step", "Bodysnatchers", "Nude", "Weird Fishes", "Reckoner"}},
	}},
	{"ar2", "Portishead", "Trip Hop", []demoAlbum{
		{"al4", "Dummy", 1994, []string{"Mysterons", "Sour Times", "Strangers", "Wandering Star", "Glory Box"}},
		{"al5", "Third", 2008, []string{"Silence", "Hunter", "Nylon Smile", "The Rip", "Machine Gun"}},
	}},
	{"ar3", "Massive Attack", "Trip Hop", []demoAlbum{
		{"al6", "Blue Lines", 1991, []string{"Safe from Harm", "One Love", "Unfinished Sympathy", "Daydreaming"}},
		{"al7", "Mezzanine", 1998, []string{"Angel", "Risingson", "Teardrop", "Inertia Creeps", "Dissolved Girl", "Group Four"}},
	}},
}

// newDemoBackend returns a memory backend holding the demo catalog.
func newDemoBackend(rng *rand.Rand) *query.Memory {
	mem := query.NewMemory(query.MemoryIdentity)
	for i, ar := range demoCatalog {
		mem.Put("artists", models.NewRecord("demo://artists/"+ar.id, map[string]any{
			"id":     ar.id,
			"artist": ar.id,
			"name":   ar.name,
			"genre":  ar.genre,
			"plays":  1000 - i*100,
		}))
		for _, al := range ar.albums {
			progress := rng.IntN(80)
			mem.Put("albums", albumRecord(ar.id, al, progress))
			for n, title := range al.tracks {
				id := fmt.Sprintf("%s-t%d", al.id, n+1)
				seconds := 150 + rng.IntN(300)
				mem.Put("tracks", models.NewRecord("demo://tracks/"+id, map[string]any{
					"id":      id,
					"album":   al.id,
					"title":   title,
					"no":      n + 1,
					"seconds": seconds,
					"size":    seconds * 40 * 1024,
				}))
			}
		}
	}
	return mem
}

func albumRecord(artist string, al demoAlbum, progress int) models.Record {
	return models.NewRecord("demo://albums/"+al.id, map[string]any{
		"id":       al.id,
		"album":    al.id,
		"artist":   artist,
		"title":    al.title,
		"year":     al.year,
		"progress": progress,
		"pending":  progress < 100,
	})
}

// mutateDemo advances the demo catalog by one step: play counts grow and
// reorder the artists, album mastering progresses, and a bonus album comes
// and goes.
func mutateDemo(mem *query.Memory, rng *rand.Rand) {
	for _, r := range mem.Records("artists") {
		id, _ := r.Identity(query.MemoryIdentity)
		gain := rng.IntN(120)
		mem.Update("artists", id, func(fields map[string]any) {
			plays, _ := models.Number(fields["plays"])
			fields["plays"] = int(plays) + gain
		})
	}
	mem.Sort("artists", func(a, b models.Record) bool {
		pa, _ := models.Number(a.Fields["plays"])
		pb, _ := models.Number(b.Fields["plays"])
		return pa > pb
	})

	for _, r := range mem.Records("albums") {
		id, _ := r.Identity(query.MemoryIdentity)
		step := rng.IntN(15)
		mem.Update("albums", id, func(fields map[string]any) {
			p, _ := models.Number(fields["progress"])
			next := int(p) + step
			if next > 100 {
				next = 100
			}
			fields["progress"] = next
			fields["pending"] = next < 100
		})
	}

	if rng.IntN(4) == 0 {
		if !mem.Update("albums", bonusAlbum, func(map[string]any) {}) {
			mem.Put("albums", albumRecord("ar1", demoAlbum{id: bonusAlbum, title: "Live Recordings", year: 2001}, 0))
		} else {
			mem.Delete("albums", bonusAlbum)
		}
	}
}

// newDemoCmd creates the 'demo' command.
func newDemoCmd() *cobra.Command {
	var useGUI bool
	var every time.Duration
	var seed uint64

	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Run linked demo lists over changing in-memory records",
		Long: `Run three linked lists (artists, albums, tracks) over an in-memory
catalog that changes every --every interval.

In the terminal the demo walks the selection through artists and albums on
its own. With --gui, click items to select them.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if every <= 0 {
				return fmt.Errorf("--every must be positive, got %s", every)
			}
			cfg, err := config.LoadBytes([]byte(demoConfig))
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			ctx, cancel := context.WithCancel(GetContext())
			defer cancel()

			if seed == 0 {
				seed = uint64(time.Now().UnixNano())
			}
			rng := rand.New(rand.NewPCG(seed, seed>>1))
			mem := newDemoBackend(rng)
			GetLogger().Debug().Uint64("seed", seed).Msg("Demo catalog seeded")

			go func() {
				ticker := time.NewTicker(every)
				defer ticker.Stop()
				for {
					select {
					case <-ctx.Done():
						return
					case <-ticker.C:
						mutateDemo(mem, rng)
					}
				}
			}()

			if useGUI {
				return runGUI(ctx, cfg, mem, nil, "livelist demo")
			}
			out := cmd.OutOrStdout()
			return runWatch(ctx, watchOptions{
				cfg:     cfg,
				backend: mem,
				clear:   isTerminal(out),
				out:     out,
				setup:   walkSelection(5 * time.Second),
			})
		},
	}

	cmd.Flags().BoolVar(&useGUI, "gui", false, "Show the demo in a desktop window")
	cmd.Flags().DurationVar(&every, "every", time.Second, "Interval between catalog changes")
	cmd.Flags().Uint64Var(&seed, "seed", 0, "Random seed for the catalog (0 picks one)")

	return cmd
}

// walkSelection returns a watch setup that alternately selects the next
// artist and the first album shown for it.
func walkSelection(period time.Duration) func(ctx context.Context, r *runner) {
	return func(ctx context.Context, r *runner) {
		go func() {
			ticker := time.NewTicker(period)
			defer ticker.Stop()
			for step := 0; ; step++ {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
				}
				s := step
				r.loop.Post(func() { selectStep(r, s) })
			}
		}()
	}
}

// selectStep selects an artist on even steps and an album on odd ones.
func selectStep(r *runner, step int) {
	artists, albums := r.find("artists"), r.find("albums")
	if artists == nil || albums == nil {
		return
	}
	if step%2 == 0 {
		ids := artists.Identities()
		if len(ids) == 0 {
			return
		}
		_ = artists.Select(ids[(step/2)%len(ids)])
		return
	}
	if ids := albums.Identities(); len(ids) > 0 {
		_ = albums.Select(ids[0])
	}
}
