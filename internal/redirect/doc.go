// Package redirect defines the core types shared by the redirect chain
// discovery engine: chains, observations, the navigation collaborator
// contract, the stop signal, and small URL helpers used across subsystems.
package redirect
