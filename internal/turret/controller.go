package turret

// Controller defines the command surface of the turret's motor controller
type Controller interface {
	// SetYawDuty commands the yaw motor PWM duty
	SetYawDuty(duty uint8) error

	// ResetYaw homes the yaw axis and zeroes the encoder
	ResetYaw() error

	// Fire launches with the given power (0-100)
	Fire(power int) error
}
