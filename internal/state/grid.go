package state

// spaceWalk yields every grid cell starting from the wanted position,
// sweeping right and down first and wrapping to the cells above and
// left of the start afterwards.
func spaceWalk(cols, rows, startCol, startRow int) []Position {
	cells := make([]Position, 0, cols*rows)
	for row := startRow; row < rows; row++ {
		for col := startCol; col < cols; col++ {
			cells = append(cells, Position{Col: col, Row: row})
		}
	}
	for row := 0; row < startRow; row++ {
		for col := 0; col < startCol; col++ {
			cells = append(cells, Position{Col: col, Row: row})
		}
	}
	return cells
}

// occupied collects the cells held by every known service except the
// one being placed. Callers must hold m.mu.
func (m *Manager) occupied(exclude string) map[string]bool {
	taken := make(map[string]bool)
	for name, svc := range m.services {
		if name == exclude {
			continue
		}
		if !svc.Placed() {
			continue
		}
		taken[svc.Pos().Key()] = true
	}
	return taken
}

// allocate finds the free cell nearest to the wanted position. When the
// whole grid is taken the wanted cell itself is returned. Callers must
// hold m.mu.
func (m *Manager) allocate(name string, wanted Position) Position {
	taken := m.occupied(name)
	for _, cell := range spaceWalk(m.cols, m.rows, wanted.Col, wanted.Row) {
		if !taken[cell.Key()] {
			return cell
		}
	}
	return wanted
}
