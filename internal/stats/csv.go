package stats

import (
	"encoding/csv"
	"io"
	"sort"
	"strconv"

	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/transform"
)

const (
	EncodingUTF8     = "utf8"
	EncodingShiftJIS = "sjis"
)

// WriteCSV: 日付, 合計, 班ごとの人数。sjis は Excel でそのまま開ける
func WriteCSV(w io.Writer, days []DayView, encoding string) error {
	var out io.Writer = w
	var closer io.Closer
	if encoding == EncodingShiftJIS {
		tw := transform.NewWriter(w, japanese.ShiftJIS.NewEncoder())
		out, closer = tw, tw
	}

	// 列は全日に出てくる班を表示順で
	var cols []TeamView
	seen := map[int64]bool{}
	for _, d := range days {
		for _, t := range d.Teams {
			if !seen[t.TeamID] {
				seen[t.TeamID] = true
				cols = append(cols, TeamView{TeamID: t.TeamID, Name: t.Name})
			}
		}
	}
	sort.Slice(cols, func(i, j int) bool { return teamLess(cols[i], cols[j]) })

	cw := csv.NewWriter(out)
	header := []string{"日付", "合計"}
	for _, c := range cols {
		header = append(header, c.Name)
	}
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, d := range days {
		byTeam := map[int64]int{}
		for _, t := range d.Teams {
			byTeam[t.TeamID] = t.Total
		}
		row := []string{d.Date, strconv.Itoa(d.Total)}
		for _, c := range cols {
			row = append(row, strconv.Itoa(byTeam[c.TeamID]))
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return err
	}
	if closer != nil {
		return closer.Close()
	}
	return nil
}

// teamLess: 名前順、未所属は最後
func teamLess(a, b TeamView) bool {
	if (a.TeamID == NoTeam) != (b.TeamID == NoTeam) {
		return b.TeamID == NoTeam
	}
	if a.Name != b.Name {
		return a.Name < b.Name
	}
	return a.TeamID < b.TeamID
}
