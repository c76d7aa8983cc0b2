// Package fetch downloads missing daily data files from an HTTPS archive
// laid out as <base>/YYYY/MM/DD/current/<file>.
package fetch

import (
	"fmt"
	"sort"

	"github.com/star/orbsub/internal/detector"
	"github.com/star/orbsub/internal/locate"
	"github.com/star/orbsub/internal/met"
)

// Item is one file to retrieve. The version suffix is not known in
// advance, so an item names the file by prefix and extension.
type Item struct {
	Day    met.DayToken
	Prefix string
	Ext    string
}

func (it Item) String() string {
	return fmt.Sprintf("%s/%sNN.%s", it.Day, it.Prefix, it.Ext)
}

// SpectrumItem is the item for a detector's spectral file.
func SpectrumItem(day met.DayToken, id detector.ID, mode detector.Mode) Item {
	return Item{Day: day, Prefix: fmt.Sprintf("glg_%s_%s_%s_v", mode.FileTag(), id, day), Ext: "pha"}
}

// AttitudeItem is the item for a day's position-history file.
func AttitudeItem(day met.DayToken) Item {
	return Item{Day: day, Prefix: fmt.Sprintf("glg_poshist_all_%s_v", day), Ext: "fit"}
}

// Plan lists the files recorded as missing, ordered by day with the
// position history first.
func Plan(m locate.Missing) []Item {
	var items []Item
	for _, d := range m.Attitude {
		items = append(items, AttitudeItem(d))
	}
	for mode, days := range m.Spectra {
		for d, ids := range days {
			for _, id := range ids {
				items = append(items, SpectrumItem(d, id, mode))
			}
		}
	}
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].Day != items[j].Day {
			return items[i].Day < items[j].Day
		}
		ai, aj := items[i].Ext == "fit", items[j].Ext == "fit"
		if ai != aj {
			return ai
		}
		return items[i].Prefix < items[j].Prefix
	})
	return items
}
