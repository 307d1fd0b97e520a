// Package motion moves boundary objects along prescribed paths.
//
// A [Mover] holds one [Motion] per moving object. Between steps the driver
// asks it for the displacement of every object over the step just taken
// ([Mover.Calc]) and applies those to the moving boundary particles
// ([Mover.Run]), so the next force evaluation sees the new wall positions and
// wall velocities.
package motion
