package yolo

// COCOClasses contains the 80 COCO class names
var COCOClasses = []string{
	"person", "bicycle", "car", "motorcycle", "airplane", "bus", "train", "truck", "boat",
	"traffic light", "fire hydrant", "stop sign", "parking meter", "bench", "bird", "cat",
	"dog", "horse", "sheep", "cow", "elephant", "bear", "zebra", "giraffe", "backpack",
	"umbrella", "handbag", "tie", "suitcase", "frisbee", "skis", "snowboard", "sports ball",
	"kite", "baseball bat", "baseball glove", "skateboard", "surfboard", "tennis racket",
	"bottle", "wine glass", "cup", "fork", "knife", "spoon", "bowl", "banana", "apple",
	"sandwich", "orange", "broccoli", "carrot", "hot dog", "pizza", "donut", "cake", "chair",
	"couch", "potted plant", "bed", "dining table", "toilet", "tv", "laptop", "mouse",
	"remote", "keyboard", "cell phone", "microwave", "oven", "toaster", "sink", "refrigerator",
	"book", "clock", "vase", "scissors", "teddy bear", "hair drier", "toothbrush",
}

// Road users are folded into "vehicle" so announcements treat them alike.
var vehicleClasses = map[string]bool{
	"bicycle": true, "car": true, "motorcycle": true, "bus": true, "train": true, "truck": true,
}

// Label maps a COCO class id to the label used by the pipeline.
func Label(classID int) string {
	if classID < 0 || classID >= len(COCOClasses) {
		return "object"
	}
	name := COCOClasses[classID]
	if vehicleClasses[name] {
		return "vehicle"
	}
	return name
}
