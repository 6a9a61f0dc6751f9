package main

import (
	"fmt"

	"impulsewars/internal/obs"
)

// Display draws decoded frames to the terminal
type Display struct {
	layout *obs.Layout
}

// NewDisplay creates a display for one layout
func NewDisplay(l *obs.Layout) *Display {
	return &Display{layout: l}
}

// Render draws the map with column 0 on the left and row 0 at the top,
// followed by the own drone and enemy summaries.
func (d *Display) Render(f *obs.Frame) {
	l := d.layout

	fmt.Print("┌")
	for x := 0; x < l.Columns; x++ {
		fmt.Print("──")
	}
	fmt.Println("┐")

	for row := 0; row < l.Rows; row++ {
		fmt.Print("│")
		for col := 0; col < l.Columns; col++ {
			fmt.Printf(" %c", cellRune(f.Cells[col*l.Rows+row]))
		}
		fmt.Println("│")
	}

	fmt.Print("└")
	for x := 0; x < l.Columns; x++ {
		fmt.Print("──")
	}
	fmt.Println("┘")

	info := f.Drone.Info
	fmt.Printf("  Drone: weapon %d | pos (%.3f, %.3f) | vel (%.3f, %.3f) | energy %.3f | steps left %.3f\n",
		f.Drone.Weapon, info[obs.OwnPosX], info[obs.OwnPosY], info[obs.OwnVelX], info[obs.OwnVelY],
		info[obs.OwnEnergy], f.StepsLeft)
	for i, e := range f.Enemies {
		if e.Info[obs.EnemyAlive] == 0 {
			fmt.Printf("  Enemy %d: dead\n", i)
			continue
		}
		side := "enemy"
		if e.Info[obs.EnemyTeammate] != 0 {
			side = "teammate"
		}
		fmt.Printf("  Enemy %d (%s): weapon %d | rel (%.3f, %.3f) | dist %.3f\n",
			i, side, e.Weapon, e.Info[obs.EnemyPosX], e.Info[obs.EnemyPosY], e.Info[obs.EnemyDistance])
	}

	var projectiles int
	for _, p := range f.Projectiles {
		if p.Weapon != 0 {
			projectiles++
		}
	}
	fmt.Printf("  Projectiles: %d\n", projectiles)
}

// cellRune picks the most important occupant of a cell
func cellRune(c obs.MapCell) rune {
	switch {
	case c.DroneIndex == 1:
		return '@'
	case c.DroneIndex > 1:
		return rune('0' + c.DroneIndex - 1)
	case c.FloatingWall:
		return 'o'
	case c.Pickup:
		return '+'
	case c.WallType != 0:
		return '█'
	}
	return '·'
}
