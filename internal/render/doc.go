// Package render turns page state into full-screen frames.
//
// Layout functions (FooterButtons, FleetRows, OverviewCards, GraphChips) are
// shared by the renderer and the session's touch handling, so a hit box is
// always exactly where its widget was drawn.
package render
