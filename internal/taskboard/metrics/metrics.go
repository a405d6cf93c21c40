package metrics

const TaskboardMetricsPrefix = "taskboard_"
