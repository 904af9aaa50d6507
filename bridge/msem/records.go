/*
 * SPDX-License-Identifier: AGPL-3.0-or-later
 * Copyright 2020 Kopano and its licensors
 */

package msem

import (
	"sort"
)

func sortRecords(records []*Record) {
	sort.SliceStable(records, func(i, j int) bool {
		if records[i].created.Equal(records[j].created) {
			return records[i].source.ID() < records[j].source.ID()
		}
		return records[i].created.Before(records[j].created)
	})
}
