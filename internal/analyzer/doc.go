// Package analyzer implements static checks of robotics submissions.
//
// Analysis runs in fixed stages: extraction, structure check, syntax
// check, heuristic source scan. Every stage can only raise report status
// along PASS < WARN < FAIL.
//
// # Heuristic scan
//
// The source scan works on raw text of Python files and is not a parser.
// Its results are advisory: heuristic findings raise status to WARN at
// most. Known inaccuracies:
//
//   - Node detection counts files that mention rclpy.init or construct
//     Node/LifecycleNode, including mentions inside comments and strings.
//     Nodes created with rclpy.create_node are missed.
//   - Publisher and subscriber detection requires the message type and a
//     literal topic to be the first two arguments. Topics passed through
//     variables or keyword arguments are missed.
//   - Un-throttled loop detection looks for "sleep" or "rate" anywhere in
//     the indented block of "while True:". Any identifier containing
//     these words (e.g. "generate") hides the warning, and loops that
//     block on I/O or spin are still reported.
//   - Magnitude detection reports decimal literals near pi or with
//     absolute value of at least 5.0, including timeouts, version
//     strings and values in comments. Integer literals are ignored.
package analyzer
