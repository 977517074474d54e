/*
Copyright © 2026 the magg authors.
This file is part of magg.

magg is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

magg is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with magg.  If not, see <http://www.gnu.org/licenses/>.
*/

// Command magg is a command-line interface for aggregating point
// observations on a hierarchical equal-area grid.
package main

import (
	"os"

	"github.com/spatialmodel/magg/maggutil"
)

func main() {
	// Cobra prints the error.
	if err := maggutil.Root.Execute(); err != nil {
		os.Exit(1)
	}
}
