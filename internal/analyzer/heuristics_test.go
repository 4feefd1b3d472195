package analyzer

import (
	"testing"
)

func TestIsNodeSource(t *testing.T) {
	tests := []struct {
		Content string
		Node    bool
	}{
		{"import rclpy\nrclpy.init(args=args)\n", true},
		{"node = Node('talker')\n", true},
		{"node = rclpy.node.Node('talker')\n", true},
		{"node = LifecycleNode('talker')\n", true},
		{"class Talker(Node):\n    pass\n", true},
		{"class Talker(rclpy.lifecycle.LifecycleNode):\n    pass\n", true},
		{"class Talker(object):\n    pass\n", false},
		{"node = MyNode()\n", false},
		{"print('hello')\n", false},
	}
	for _, test := range tests {
		if v := isNodeSource(test.Content); v != test.Node {
			t.Fatalf("Expected %v for %q, got %v", test.Node, test.Content, v)
		}
	}
}

func TestIsCppNodeSource(t *testing.T) {
	tests := []struct {
		Content string
		Node    bool
	}{
		{"rclcpp::init(argc, argv);\n", true},
		{"class Driver : public rclcpp::Node {};\n", true},
		{"auto node = std::make_shared<rclcpp::Node>(\"driver\");\n", true},
		{"#include <rclcpp/rclcpp.hpp>\nint main() {}\n", false},
		{"int main() { return 0; }\n", false},
	}
	for _, test := range tests {
		if v := isCppNodeSource(test.Content); v != test.Node {
			t.Fatalf("Expected %v for %q, got %v", test.Node, test.Content, v)
		}
	}
}

func TestHasUnthrottledLoop(t *testing.T) {
	tests := []struct {
		Content    string
		Unthrottle bool
	}{
		{"while True:\n    pub.publish(msg)\n", true},
		{"while 1:\n    pass\n", true},
		{"while True:\n    pub.publish(msg)\n    time.sleep(0.1)\n", false},
		{"while True:\n    pub.publish(msg)\n    rate.sleep()\n", false},
		{"while True:\n    if ok:\n        time.sleep(1)\n", false},
		{"while True: time.sleep(1)\n", false},
		{"while True: pass\n", true},
		{"while True:\n    pub.publish(msg)\n\n    # rate limited\n\nrate.sleep()\n", true},
		{"def spin():\n    while True:\n        step()\n    time.sleep(1)\n", true},
		{"while True:\n\n    step()\n\n    time.sleep(1)\n", false},
		{"while running:\n    step()\n", false},
		{"for i in range(10):\n    step()\n", false},
	}
	for _, test := range tests {
		if v := hasUnthrottledLoop(test.Content); v != test.Unthrottle {
			t.Fatalf("Expected %v for %q, got %v", test.Unthrottle, test.Content, v)
		}
	}
}

func TestFindUnsafeMagnitude(t *testing.T) {
	tests := []struct {
		Content string
		Value   string
	}{
		{"angle = 3.14159\n", "3.14159"},
		{"angle = -3.15\n", "3.15"},
		{"x = 5.0\n", "5.0"},
		{"x = -6.0\n", "6.0"},
		{"x = 12.5\n", "12.5"},
		{"x = 1e3\n", ""},
		{"x = 1.0e3\n", "1.0e3"},
		{"x = 3.2\n", ""},
		{"x = 3.13\n", ""},
		{"x = 0.5, 1.5, 4.99\n", ""},
		{"x = 5\n", ""},
		{"speed_v2.5 = 1\n", ""},
		{"joints = [0.1, 0.2, 6.28]\n", "6.28"},
	}
	for _, test := range tests {
		value, ok := findUnsafeMagnitude(test.Content)
		if ok != (test.Value != "") || value != test.Value {
			t.Fatalf("Expected %q for %q, got %q", test.Value, test.Content, value)
		}
	}
}

func TestScanSources(t *testing.T) {
	files := []sourceFile{
		{
			Path: "a/listener.py",
			Content: "class Listener(Node):\n" +
				"    def __init__(self):\n" +
				"        self.create_subscription(sensor_msgs.msg.JointState, '/joint_states', self.cb, 10)\n" +
				"        self.create_subscription(String, \"/chatter\", self.cb, 10)\n",
		},
		{
			Path: "b/talker.py",
			Content: "rclpy.init()\n" +
				"pub = node.create_publisher(String, '/cmd', 10)\n" +
				"pub2 = node.create_publisher(String, '/cmd', 10)\n" +
				"while True:\n" +
				"    pub.publish(String(data='go'))\n" +
				"target = 3.1416\n" +
				"limit = 5.0\n",
		},
		{
			Path:    "c/util.py",
			Content: "def helper():\n    return 0.5\n",
		},
	}
	analysis := scanSources(files)
	if analysis.NodesFound != 2 {
		t.Fatalf("Expected 2 nodes, got %d", analysis.NodesFound)
	}
	expectJSON(t, `{
		"nodes_found": 2,
		"publishers": [
			{"topic": "/cmd", "type": "String", "file": "b/talker.py"},
			{"topic": "/cmd", "type": "String", "file": "b/talker.py"}
		],
		"subscribers": [
			{"topic": "/joint_states", "type": "sensor_msgs.msg.JointState", "file": "a/listener.py"},
			{"topic": "/chatter", "type": "String", "file": "a/listener.py"}
		],
		"safety_warnings": [
			"File b/talker.py: Potential un-throttled loop detected.",
			"File b/talker.py: Hardcoded value 3.1416 that could be outside safe joint limits detected."
		]
	}`, analysis)
}

func TestScanSourcesEmpty(t *testing.T) {
	analysis := scanSources(nil)
	expectJSON(t, `{
		"nodes_found": 0,
		"publishers": [],
		"subscribers": [],
		"safety_warnings": []
	}`, analysis)
}
